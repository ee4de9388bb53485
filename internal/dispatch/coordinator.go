package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"MailMerge/internal/archive"
	"MailMerge/internal/metrics"
	"MailMerge/internal/models"
	"MailMerge/internal/outcome"
	"MailMerge/internal/render"
	"MailMerge/internal/templatestore"
	"MailMerge/internal/transport"
)

// ErrNoAttachment marks a row that asked for an attachment when the
// batch was given none.
var ErrNoAttachment = errors.New("no attachment selected")

// Summary is the aggregate result of one batch. Per-row details live in
// the outcome logs, not here. RecordFailures counts rows whose outcome
// could not be durably appended; a non-zero value means the logs are
// missing records for rows that were still attempted.
type Summary struct {
	Sent           int
	Failed         int
	Skipped        int
	RecordFailures int
}

// Coordinator runs bulk dispatch batches: it resolves the template,
// fans rows out over a bounded worker pool, sends each row's email, and
// records exactly one outcome per non-skipped row. One row's failure
// never touches another row.
type Coordinator struct {
	Store     templatestore.Store
	Transport transport.Transport
	Recorder  *outcome.Recorder
	Archiver  archive.Uploader // optional, best-effort

	Source     string
	Workers    int
	SuccessKey string
	FailedKey  string

	Log *zap.Logger
}

type rowOutcome int

const (
	rowSkipped rowOutcome = iota
	rowSent
	rowFailed
)

// rowResult is the tagged per-row outcome; failures are values here,
// never panics crossing the pool boundary.
type rowResult struct {
	kind   rowOutcome
	record outcome.Record
}

// Dispatch sends one personalized email per row of the dataset. The
// template must exist before any row is processed. All outcome records
// are durably appended before Dispatch returns; log archival runs after
// that and cannot change recorded outcomes. A batch always runs to
// completion once fan-out starts.
func (c *Coordinator) Dispatch(ctx context.Context, templateName string, rows []models.Row, attachment *models.Attachment, subject string) (Summary, error) {
	tmpl, err := c.Store.Get(ctx, templateName)
	if err != nil {
		if errors.Is(err, templatestore.ErrNotFound) {
			return Summary{}, fmt.Errorf("template %q: %w", templateName, templatestore.ErrNotFound)
		}
		return Summary{}, fmt.Errorf("fetch template %q: %w", templateName, err)
	}

	// Once fan-out starts the batch runs to completion: a caller
	// disconnect must not abort remaining sends or the archival pass.
	ctx = context.WithoutCancel(ctx)

	workers := c.Workers
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan models.DispatchJob)

	var (
		wg        sync.WaitGroup
		sent      atomic.Int64
		failed    atomic.Int64
		skipped   atomic.Int64
		notLogged atomic.Int64
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(id int) {
			defer wg.Done()

			for job := range jobs {
				res := c.processRow(ctx, job)

				switch res.kind {

				case rowSkipped:
					skipped.Add(1)
					metrics.RowsSkipped.Inc()

				case rowSent:
					if err := c.Recorder.Record(outcome.StatusSent, res.record); err != nil {
						notLogged.Add(1)
						c.Log.Error("failed to record success",
							zap.Int("worker_id", id),
							zap.String("to", res.record.Recipient),
							zap.Error(err),
						)
					}

					sent.Add(1)
					metrics.EmailsSent.Inc()

					c.Log.Info("email sent",
						zap.Int("worker_id", id),
						zap.String("to", res.record.Recipient),
						zap.String("message_id", res.record.MessageID),
					)

				case rowFailed:
					if err := c.Recorder.Record(outcome.StatusFailed, res.record); err != nil {
						notLogged.Add(1)
						c.Log.Error("failed to record failure",
							zap.Int("worker_id", id),
							zap.String("to", res.record.Recipient),
							zap.Error(err),
						)
					}

					failed.Add(1)
					metrics.EmailFailures.Inc()

					c.Log.Error("email send failed",
						zap.Int("worker_id", id),
						zap.String("to", res.record.Recipient),
						zap.String("error_details", res.record.ErrorDetails),
					)
				}
			}
		}(i)
	}

	for _, row := range rows {
		jobs <- models.DispatchJob{
			TemplateBody: tmpl.HTML,
			Subject:      subject,
			Row:          row,
			Attachment:   attachment,
		}
	}
	close(jobs)

	wg.Wait()

	metrics.BatchesDispatched.Inc()

	c.archiveLogs(ctx)

	return Summary{
		Sent:           int(sent.Load()),
		Failed:         int(failed.Load()),
		Skipped:        int(skipped.Load()),
		RecordFailures: int(notLogged.Load()),
	}, nil
}

// processRow handles a single recipient: attachment policy, render,
// send. Rows without an email address are not recipients at all and
// produce no record.
func (c *Coordinator) processRow(ctx context.Context, job models.DispatchJob) rowResult {
	if job.Row.Email == "" {
		return rowResult{kind: rowSkipped}
	}

	rec := outcome.Record{
		Timestamp: time.Now().UTC(),
		Recipient: job.Row.Email,
		Subject:   job.Subject,
		Body:      snapshot(job.Row.Fields),
	}

	if job.Row.WantAttachment && job.Attachment == nil {
		rec.ErrorDetails = ErrNoAttachment.Error()
		return rowResult{kind: rowFailed, record: rec}
	}

	html := render.Render(job.TemplateBody, job.Row.Fields)

	id, err := c.Transport.Send(ctx, transport.Message{
		From:       c.Source,
		To:         job.Row.Email,
		Subject:    job.Subject,
		HTMLBody:   html,
		Attachment: job.Attachment,
	})
	// An empty id without an error is still a transport failure; both
	// shapes are treated uniformly.
	if err == nil && id == "" {
		err = &transport.Error{Provider: "unknown", Recipient: job.Row.Email, Err: errors.New("transport returned no message id")}
	}
	if err != nil {
		rec.ErrorDetails = err.Error()
		return rowResult{kind: rowFailed, record: rec}
	}

	rec.MessageID = id
	return rowResult{kind: rowSent, record: rec}
}

// archiveLogs uploads both outcome logs. Best-effort only.
func (c *Coordinator) archiveLogs(ctx context.Context) {
	if c.Archiver == nil {
		return
	}

	uploads := []struct {
		path string
		key  string
	}{
		{c.Recorder.Path(outcome.StatusSent), c.SuccessKey},
		{c.Recorder.Path(outcome.StatusFailed), c.FailedKey},
	}

	for _, u := range uploads {
		if err := c.Archiver.Upload(ctx, u.path, u.key); err != nil {
			c.Log.Warn("log archival failed",
				zap.String("path", u.path),
				zap.String("key", u.key),
				zap.Error(err),
			)
		}
	}
}

// snapshot serializes a row's renderable fields for the outcome record.
func snapshot(fields map[string]any) string {
	data, err := json.Marshal(fields)
	if err != nil {
		return "{}"
	}
	return string(data)
}
