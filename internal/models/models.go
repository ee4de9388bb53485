package models

// Row is one recipient entry from an uploaded dataset. Fields holds the
// renderable columns only; Email and the attachment flag are lifted out.
// Values are string, int64, or float64 depending on the source cell.
type Row struct {
	Email          string
	WantAttachment bool
	Fields         map[string]any
}

// Attachment is the shared file sent alongside every row that opts in.
// Read-only for the lifetime of a batch.
type Attachment struct {
	Filename string
	Data     []byte
}

// DispatchJob is one unit of work inside a batch: a single recipient row
// plus the batch-wide template, subject and attachment. It has no identity
// beyond the row itself and is discarded once its outcome is recorded.
type DispatchJob struct {
	TemplateBody string
	Subject      string
	Row          Row
	Attachment   *Attachment
}
