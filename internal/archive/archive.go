package archive

import "context"

// Uploader archives a local log file under a remote key. Invoked once
// per batch after dispatch completes; failures are best-effort and never
// change recorded outcomes.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) error
}
