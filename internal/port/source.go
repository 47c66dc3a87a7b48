package port

import (
	"context"
	"time"

	"legalrag/internal/domain"
)

// DocumentRef identifies a document a source can load.
type DocumentRef struct {
	ID      string
	Path    string
	ModTime time.Time
	Size    int64
}

// DocumentSource supplies documents whose text is already extracted. List is
// cheap; Load reads one document, so a bad file fails only itself.
type DocumentSource interface {
	List(ctx context.Context) ([]DocumentRef, error)
	Load(ctx context.Context, ref DocumentRef) (domain.Document, error)
}
