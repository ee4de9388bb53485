package outcome

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Record is one durable send outcome. Success records carry MessageID,
// failure records carry ErrorDetails; both snapshot the row's rendered
// data as a JSON string in Body. Records are never mutated once written.
type Record struct {
	Timestamp    time.Time `json:"timestamp"`
	Recipient    string    `json:"recipient_email"`
	MessageID    string    `json:"message_id,omitempty"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body"`
	ErrorDetails string    `json:"error_details,omitempty"`
}

// Recorder appends outcome records to two append-only files, one JSON
// object per line. Appends are serialized per file so concurrent row
// tasks never interleave partial lines.
type Recorder struct {
	success *logFile
	failed  *logFile
	log     *zap.Logger
}

type logFile struct {
	mu   sync.Mutex
	path string
}

func NewRecorder(successPath, failedPath string, log *zap.Logger) *Recorder {
	return &Recorder{
		success: &logFile{path: successPath},
		failed:  &logFile{path: failedPath},
		log:     log,
	}
}

// Path returns the on-disk location of the log for the given status,
// used by archival after a batch.
func (r *Recorder) Path(status Status) string {
	return r.logFor(status).path
}

// Record appends rec to the log selected by status. The append is atomic
// with respect to other Record calls.
func (r *Recorder) Record(status Status, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal outcome record: %w", err)
	}

	lf := r.logFor(status)
	lf.mu.Lock()
	defer lf.mu.Unlock()

	f, err := os.OpenFile(lf.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s log: %w", status, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append %s record: %w", status, err)
	}
	return nil
}

// ReadAll parses the full log for the given status in append order.
// Malformed lines are skipped with a warning rather than failing the
// whole read. A log that does not exist yet reads as empty.
func (r *Recorder) ReadAll(status Status) ([]Record, error) {
	lf := r.logFor(status)
	lf.mu.Lock()
	defer lf.mu.Unlock()

	f, err := os.Open(lf.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("open %s log: %w", status, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			r.log.Warn("skipping malformed outcome record",
				zap.String("status", string(status)),
				zap.Int("line", lineNo),
				zap.Error(err),
			)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s log: %w", status, err)
	}

	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func (r *Recorder) logFor(status Status) *logFile {
	if status == StatusFailed {
		return r.failed
	}
	return r.success
}
