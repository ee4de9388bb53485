package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"MailMerge/internal/models"
	"MailMerge/internal/outcome"
	"MailMerge/internal/templatestore"
	"MailMerge/internal/transport"
)

type fakeStore struct {
	templates map[string]templatestore.Template
}

func (s *fakeStore) List(context.Context) ([]string, error) {
	var names []string
	for name := range s.templates {
		names = append(names, name)
	}
	return names, nil
}

func (s *fakeStore) Get(_ context.Context, name string) (templatestore.Template, error) {
	tmpl, ok := s.templates[name]
	if !ok {
		return templatestore.Template{}, templatestore.ErrNotFound
	}
	return tmpl, nil
}

func (s *fakeStore) CreateOrUpdate(_ context.Context, name, html, subject string) error {
	s.templates[name] = templatestore.Template{Name: name, HTML: html, Subject: subject}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, name string) error {
	delete(s.templates, name)
	return nil
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    []transport.Message
	failFor map[string]error
	emptyID map[string]bool
	seq     int
}

func (f *fakeTransport) Send(ctx context.Context, msg transport.Message) (string, error) {
	// The real SDK refuses to start a call on a done context.
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failFor[msg.To]; ok {
		return "", err
	}
	if f.emptyID[msg.To] {
		return "", nil
	}

	f.sent = append(f.sent, msg)
	f.seq++
	return fmt.Sprintf("msg-%d", f.seq), nil
}

func (f *fakeTransport) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var to []string
	for _, msg := range f.sent {
		to = append(to, msg.To)
	}
	return to
}

type fakeArchiver struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (a *fakeArchiver) Upload(ctx context.Context, _, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return a.err
}

func newCoordinator(t *testing.T, store templatestore.Store, tr transport.Transport, arch *fakeArchiver) *Coordinator {
	t.Helper()

	dir := t.TempDir()
	recorder := outcome.NewRecorder(
		filepath.Join(dir, "succeeded_email_log.txt"),
		filepath.Join(dir, "failed_email_log.txt"),
		zap.NewNop(),
	)

	c := &Coordinator{
		Store:      store,
		Transport:  tr,
		Recorder:   recorder,
		Source:     "noreply@mailmerge.io",
		Workers:    3,
		SuccessKey: "succeeded_email_log.txt",
		FailedKey:  "failed_email_log.txt",
		Log:        zap.NewNop(),
	}
	if arch != nil {
		c.Archiver = arch
	}
	return c
}

func invoiceStore() *fakeStore {
	return &fakeStore{templates: map[string]templatestore.Template{
		"invoice": {Name: "invoice", HTML: "Hi {{name}}, total {{amount}}"},
	}}
}

func TestDispatch_AllRowsSucceed(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	c := newCoordinator(t, invoiceStore(), tr, nil)

	var rows []models.Row
	for i := 0; i < 5; i++ {
		rows = append(rows, models.Row{
			Email:  fmt.Sprintf("user%d@x.com", i),
			Fields: map[string]any{"name": fmt.Sprintf("User %d", i), "amount": int64(i)},
		})
	}

	summary, err := c.Dispatch(context.Background(), "invoice", rows, nil, "March invoice")
	require.NoError(t, err)
	require.Equal(t, Summary{Sent: 5}, summary)

	succeeded, err := c.Recorder.ReadAll(outcome.StatusSent)
	require.NoError(t, err)
	require.Len(t, succeeded, 5)
	for _, rec := range succeeded {
		require.NotEmpty(t, rec.MessageID)
		require.Equal(t, "March invoice", rec.Subject)
		require.NotEmpty(t, rec.Body)
	}

	failed, err := c.Recorder.ReadAll(outcome.StatusFailed)
	require.NoError(t, err)
	require.Empty(t, failed)
}

func TestDispatch_SkipsRowsWithoutEmail(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	c := newCoordinator(t, invoiceStore(), tr, nil)

	rows := []models.Row{
		{Email: "a@x.com", Fields: map[string]any{"name": "Ann", "amount": 4.0}},
		{Email: "", Fields: map[string]any{"name": "Bob", "amount": int64(5)}},
	}

	summary, err := c.Dispatch(context.Background(), "invoice", rows, nil, "totals")
	require.NoError(t, err)
	require.Equal(t, Summary{Sent: 1, Skipped: 1}, summary)

	require.Len(t, tr.sent, 1)
	require.Equal(t, "a@x.com", tr.sent[0].To)
	require.Equal(t, "Hi Ann, total 4", tr.sent[0].HTMLBody)

	// The skipped row leaves no trace in either log.
	succeeded, err := c.Recorder.ReadAll(outcome.StatusSent)
	require.NoError(t, err)
	require.Len(t, succeeded, 1)
	require.Equal(t, "a@x.com", succeeded[0].Recipient)

	failed, err := c.Recorder.ReadAll(outcome.StatusFailed)
	require.NoError(t, err)
	require.Empty(t, failed)
}

func TestDispatch_AttachmentPolicy(t *testing.T) {
	t.Parallel()

	t.Run("flagged row without batch attachment fails", func(t *testing.T) {
		t.Parallel()

		tr := &fakeTransport{}
		c := newCoordinator(t, invoiceStore(), tr, nil)

		rows := []models.Row{
			{Email: "wants@x.com", WantAttachment: true, Fields: map[string]any{"name": "Ann"}},
			{Email: "fine@x.com", Fields: map[string]any{"name": "Bob"}},
		}

		summary, err := c.Dispatch(context.Background(), "invoice", rows, nil, "docs")
		require.NoError(t, err)
		require.Equal(t, Summary{Sent: 1, Failed: 1}, summary)

		// The flagged row never reaches the transport.
		require.Equal(t, []string{"fine@x.com"}, tr.sentTo())

		failed, err := c.Recorder.ReadAll(outcome.StatusFailed)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		require.Equal(t, "wants@x.com", failed[0].Recipient)
		require.Equal(t, ErrNoAttachment.Error(), failed[0].ErrorDetails)
	})

	t.Run("flagged row with batch attachment is sent with it", func(t *testing.T) {
		t.Parallel()

		tr := &fakeTransport{}
		c := newCoordinator(t, invoiceStore(), tr, nil)

		att := &models.Attachment{Filename: "terms.pdf", Data: []byte("pdf bytes")}
		rows := []models.Row{
			{Email: "wants@x.com", WantAttachment: true, Fields: map[string]any{"name": "Ann"}},
		}

		summary, err := c.Dispatch(context.Background(), "invoice", rows, att, "docs")
		require.NoError(t, err)
		require.Equal(t, Summary{Sent: 1}, summary)
		require.Len(t, tr.sent, 1)
		require.NotNil(t, tr.sent[0].Attachment)
		require.Equal(t, "terms.pdf", tr.sent[0].Attachment.Filename)
	})
}

func TestDispatch_TransportFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{failFor: map[string]error{
		"bad@x.com": &transport.Error{Provider: "ses", Recipient: "bad@x.com", Err: errors.New("mailbox unavailable")},
	}}
	c := newCoordinator(t, invoiceStore(), tr, nil)

	rows := []models.Row{
		{Email: "a@x.com", Fields: map[string]any{"name": "Ann"}},
		{Email: "bad@x.com", Fields: map[string]any{"name": "Bad"}},
		{Email: "b@x.com", Fields: map[string]any{"name": "Bob"}},
	}

	summary, err := c.Dispatch(context.Background(), "invoice", rows, nil, "hello")
	require.NoError(t, err)
	require.Equal(t, Summary{Sent: 2, Failed: 1}, summary)

	failed, err := c.Recorder.ReadAll(outcome.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "bad@x.com", failed[0].Recipient)
	require.Contains(t, failed[0].ErrorDetails, "mailbox unavailable")
}

func TestDispatch_EmptyMessageIDIsTransportFailure(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{emptyID: map[string]bool{"a@x.com": true}}
	c := newCoordinator(t, invoiceStore(), tr, nil)

	rows := []models.Row{{Email: "a@x.com", Fields: map[string]any{"name": "Ann"}}}

	summary, err := c.Dispatch(context.Background(), "invoice", rows, nil, "hello")
	require.NoError(t, err)
	require.Equal(t, Summary{Failed: 1}, summary)

	failed, err := c.Recorder.ReadAll(outcome.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Contains(t, failed[0].ErrorDetails, "no message id")
}

func TestDispatch_TemplateNotFoundFailsBeforeAnyRow(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	c := newCoordinator(t, invoiceStore(), tr, nil)

	rows := []models.Row{{Email: "a@x.com", Fields: map[string]any{"name": "Ann"}}}

	_, err := c.Dispatch(context.Background(), "missing", rows, nil, "hello")
	require.ErrorIs(t, err, templatestore.ErrNotFound)
	require.Empty(t, tr.sent)

	succeeded, err := c.Recorder.ReadAll(outcome.StatusSent)
	require.NoError(t, err)
	require.Empty(t, succeeded)
}

func TestDispatch_RerunOnlyGrowsLogs(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	c := newCoordinator(t, invoiceStore(), tr, nil)

	rows := []models.Row{
		{Email: "a@x.com", Fields: map[string]any{"name": "Ann"}},
		{Email: "b@x.com", Fields: map[string]any{"name": "Bob"}},
	}

	for run := 0; run < 2; run++ {
		summary, err := c.Dispatch(context.Background(), "invoice", rows, nil, "hello")
		require.NoError(t, err)
		require.Equal(t, Summary{Sent: 2}, summary)
	}

	succeeded, err := c.Recorder.ReadAll(outcome.StatusSent)
	require.NoError(t, err)
	require.Len(t, succeeded, 4)
}

// blockingTransport parks every Send on a gate so the test can observe
// how many are in flight at once.
type blockingTransport struct {
	release chan struct{}

	mu       sync.Mutex
	inFlight int
	peak     int
}

func (b *blockingTransport) Send(_ context.Context, _ transport.Message) (string, error) {
	b.mu.Lock()
	b.inFlight++
	if b.inFlight > b.peak {
		b.peak = b.inFlight
	}
	b.mu.Unlock()

	<-b.release

	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()
	return "msg-blocked", nil
}

func (b *blockingTransport) current() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

func (b *blockingTransport) peakInFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peak
}

func TestDispatch_ConcurrencyNeverExceedsWorkerCount(t *testing.T) {
	t.Parallel()

	bt := &blockingTransport{release: make(chan struct{})}
	c := newCoordinator(t, invoiceStore(), bt, nil)

	var rows []models.Row
	for i := 0; i < 10; i++ {
		rows = append(rows, models.Row{
			Email:  fmt.Sprintf("user%d@x.com", i),
			Fields: map[string]any{"name": fmt.Sprintf("User %d", i)},
		})
	}

	done := make(chan Summary, 1)
	go func() {
		summary, err := c.Dispatch(context.Background(), "invoice", rows, nil, "hello")
		if err == nil {
			done <- summary
		}
	}()

	// All three workers fill up, then no further sends start until
	// the gate opens.
	require.Eventually(t, func() bool { return bt.current() == 3 }, 2*time.Second, 5*time.Millisecond)
	close(bt.release)

	summary := <-done
	require.Equal(t, 10, summary.Sent)
	require.Equal(t, 3, bt.peakInFlight())
}

func TestDispatch_RunsToCompletionAfterCancellation(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	arch := &fakeArchiver{}
	c := newCoordinator(t, invoiceStore(), tr, arch)

	rows := []models.Row{
		{Email: "a@x.com", Fields: map[string]any{"name": "Ann"}},
		{Email: "b@x.com", Fields: map[string]any{"name": "Bob"}},
		{Email: "c@x.com", Fields: map[string]any{"name": "Cam"}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := c.Dispatch(ctx, "invoice", rows, nil, "hello")
	require.NoError(t, err)
	require.Equal(t, Summary{Sent: 3}, summary)

	// No spurious cancellation failures reach the logs.
	failed, err := c.Recorder.ReadAll(outcome.StatusFailed)
	require.NoError(t, err)
	require.Empty(t, failed)

	succeeded, err := c.Recorder.ReadAll(outcome.StatusSent)
	require.NoError(t, err)
	require.Len(t, succeeded, 3)

	// Archival still runs after the caller is gone.
	require.ElementsMatch(t, []string{"succeeded_email_log.txt", "failed_email_log.txt"}, arch.keys)
}

func TestDispatch_CountsRecordingFailures(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	c := newCoordinator(t, invoiceStore(), tr, nil)

	// A directory is not appendable, so every Record call fails.
	c.Recorder = outcome.NewRecorder(t.TempDir(), t.TempDir(), zap.NewNop())

	rows := []models.Row{
		{Email: "a@x.com", Fields: map[string]any{"name": "Ann"}},
		{Email: "b@x.com", Fields: map[string]any{"name": "Bob"}},
	}

	summary, err := c.Dispatch(context.Background(), "invoice", rows, nil, "hello")
	require.NoError(t, err)
	require.Equal(t, 2, summary.Sent)
	require.Equal(t, 2, summary.RecordFailures)
}

func TestDispatch_ArchivesLogsAfterBatch(t *testing.T) {
	t.Parallel()

	t.Run("both logs uploaded", func(t *testing.T) {
		t.Parallel()

		arch := &fakeArchiver{}
		c := newCoordinator(t, invoiceStore(), &fakeTransport{}, arch)

		rows := []models.Row{{Email: "a@x.com", Fields: map[string]any{"name": "Ann"}}}
		_, err := c.Dispatch(context.Background(), "invoice", rows, nil, "hello")
		require.NoError(t, err)

		require.ElementsMatch(t, []string{"succeeded_email_log.txt", "failed_email_log.txt"}, arch.keys)
	})

	t.Run("archival failure does not change outcomes", func(t *testing.T) {
		t.Parallel()

		arch := &fakeArchiver{err: errors.New("bucket gone")}
		c := newCoordinator(t, invoiceStore(), &fakeTransport{}, arch)

		rows := []models.Row{{Email: "a@x.com", Fields: map[string]any{"name": "Ann"}}}
		summary, err := c.Dispatch(context.Background(), "invoice", rows, nil, "hello")
		require.NoError(t, err)
		require.Equal(t, Summary{Sent: 1}, summary)

		succeeded, readErr := c.Recorder.ReadAll(outcome.StatusSent)
		require.NoError(t, readErr)
		require.Len(t, succeeded, 1)
	})
}
