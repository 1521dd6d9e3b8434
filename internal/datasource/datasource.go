// Package datasource abstracts where transfer input bytes come from, so the
// engine can read uploaded temporaries and plain local files the same way.
package datasource

import (
	"context"
	"io"
)

// Source opens a byte stream for one transfer. Implementations must be cheap
// to construct; a Source is built per request and discarded after use.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
