package fundrequest

import (
	"context"
	"io"
	"time"
)

// ProofStorage stores payment proof documents outside the database
type ProofStorage interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	// DownloadURL returns a temporary link to the object and when it expires
	DownloadURL(ctx context.Context, key string) (string, time.Time, error)
	Delete(ctx context.Context, key string) error
}
