package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"MailMerge/internal/api"
	"MailMerge/internal/archive"
	"MailMerge/internal/config"
	"MailMerge/internal/dispatch"
	"MailMerge/internal/metrics"
	"MailMerge/internal/outcome"
	"MailMerge/internal/templatestore"
	"MailMerge/internal/transport"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// AWS Clients
	// ------------------------------------------------
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AWSAccessKeyID,
		cfg.AWSSecretAccessKey,
		"",
	)

	sesClient := ses.New(ses.Options{
		Region:      cfg.AWSRegion,
		Credentials: creds,
	})

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Outcome Recorder
	// ------------------------------------------------
	recorder := outcome.NewRecorder(cfg.SuccessLogPath, cfg.FailedLogPath, logger)

	// ------------------------------------------------
	// Template Store
	// ------------------------------------------------
	store := templatestore.NewSES(sesClient)

	// ------------------------------------------------
	// Mail Transport
	// ------------------------------------------------
	var mail transport.Transport
	switch cfg.TransportProvider {
	case "smtp":
		mail = transport.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	default:
		mail = transport.NewSES(sesClient)
	}

	// ------------------------------------------------
	// Log Archival (optional)
	// ------------------------------------------------
	var archiver archive.Uploader
	if cfg.ArchiveBucket != "" {
		s3Client := s3.New(s3.Options{
			Region:      cfg.AWSRegion,
			Credentials: creds,
		})
		archiver = archive.NewS3(s3Client, cfg.ArchiveBucket)
	}

	// ------------------------------------------------
	// Dispatch Coordinator
	// ------------------------------------------------
	coordinator := &dispatch.Coordinator{
		Store:      store,
		Transport:  mail,
		Recorder:   recorder,
		Archiver:   archiver,
		Source:     cfg.SourceEmail,
		Workers:    cfg.WorkerCount,
		SuccessKey: cfg.SuccessLogKey,
		FailedKey:  cfg.FailedLogKey,
		Log:        logger,
	}

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Store:      store,
		Dispatcher: coordinator,
		Recorder:   recorder,
		BlankRows:  cfg.ExportBlankRows,
		Log:        logger,
	}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /templates", apiHandler.CreateTemplate)
	apiMux.HandleFunc("GET /templates", apiHandler.ListTemplates)
	apiMux.HandleFunc("GET /templates/{name}", apiHandler.ViewTemplate)
	apiMux.HandleFunc("PUT /templates/{name}", apiHandler.UpdateTemplate)
	apiMux.HandleFunc("DELETE /templates/{name}", apiHandler.DeleteTemplate)
	apiMux.HandleFunc("GET /templates/{name}/workbook", apiHandler.DownloadWorkbook)
	apiMux.HandleFunc("POST /preview", apiHandler.Preview)
	apiMux.HandleFunc("POST /dispatch", apiHandler.Dispatch)
	apiMux.HandleFunc("GET /reports/success", apiHandler.SuccessReport)
	apiMux.HandleFunc("GET /reports/failed", apiHandler.FailedReport)

	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: apiMux,
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
