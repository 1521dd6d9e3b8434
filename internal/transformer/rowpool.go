// Package transformer provides streaming, allocation-conscious row handling
// for the transfer pipeline: a pooled positional Row passed from parser to
// coercer to loader, and the coercion step that converts raw text fields into
// the representation demanded by the confirmed column types.
package transformer

import "sync"

// Row is a pooled container holding one positional row on its way to the
// destination batch.
//
// Contract:
//   - The producing stage writes into r.V[0:colCount] (no re-slice growth).
//   - After the row has been handed to the destination, the loader must call
//     r.Free() to return it to the pool.
//   - Do not retain references to r or r.V beyond the owning stage.
//
// V stays []any so batches can be appended to the destination writer without
// per-row conversion.
type Row struct {
	V []any
}

var rowPool sync.Pool

// GetRow returns a pooled Row with length colCount. All elements are zeroed.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns the Row to the pool. The caller must not use r after Free().
func (r *Row) Free() {
	rowPool.Put(r)
}
