package storage

import (
	"context"
	"fmt"

	"chferry/internal/transformer"
)

// LoadBatches drains pooled rows from 'in', groups them into batches of size
// 'batchSize', and calls 'copyFn' for each non-empty batch — including the
// final partial batch after the channel closes. It returns the total number
// of rows reported by copyFn and the first error encountered.
//
// Ordering: batches flush in arrival order; a row is never written after any
// row belonging to a later batch. The function never buffers more than one
// batch plus the channel's pending items. Rows are returned to the pool after
// a successful flush.
func LoadBatches(
	ctx context.Context,
	columns []string,
	in <-chan *transformer.Row,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}

	var (
		total int64
		batch = make([]*transformer.Row, 0, batchSize)
		slab  = make([][]any, 0, batchSize)
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		// Build the [][]any view on a reused slab backing array.
		slab = slab[:0]
		for _, r := range batch {
			slab = append(slab, r.V)
		}
		n, err := copyFn(ctx, columns, slab)
		total += n
		if err != nil {
			return err
		}
		for _, r := range batch {
			r.Free()
		}
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case r, ok := <-in:
			if !ok {
				// Channel closed: flush the remaining partial batch.
				if err := flush(); err != nil {
					return total, err
				}
				return total, nil
			}
			batch = append(batch, r)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					// Fatal destination error; the caller cancels the
					// producer, which unblocks any pending sends.
					return total, err
				}
			}
		}
	}
}
