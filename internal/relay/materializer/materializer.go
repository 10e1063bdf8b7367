// Package materializer turns a document reference into something the relay
// client can send: an in-memory body, a staged temp file, or the reference
// itself.
package materializer

import (
	"context"
	"io"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
)

// Materializer is one acquisition strategy.
type Materializer interface {
	Strategy() relay.Strategy
	Materialize(ctx context.Context, ref relay.Reference) (*Document, error)
}

// Document is a materialized document owned by the current request. Exactly
// one of Body or Reference is set. Release must be called on every exit path
// once the document is no longer needed.
type Document struct {
	Body        io.Reader
	Reference   string
	ContentType string
	SizeBytes   int64
	OriginName  string

	tempPath string
	release  func() error
	once     sync.Once
	err      error
}

// IsReference reports whether the document is relayed by reference only.
func (d *Document) IsReference() bool {
	return d.Body == nil
}

// TempPath is the staged file backing Body, or "" when nothing was written
// to disk.
func (d *Document) TempPath() string {
	return d.tempPath
}

// Release frees any resources held by the document, removing staged files.
// It is safe to call more than once and on a nil Document.
func (d *Document) Release() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		if d.release != nil {
			d.err = d.release()
		}
	})
	return d.err
}
