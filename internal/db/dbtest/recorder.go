// Package dbtest provides an in-memory db.Gateway that records statements.
package dbtest

import (
	"context"
	"sync"

	"floodsync/internal/db"
)

// Responder produces the result of one statement.
type Responder func(q db.Query) (*db.Result, error)

// Call is one executed statement. Tx is 0 outside a transaction, otherwise
// the 1-based number of the transaction it ran in.
type Call struct {
	Query db.Query
	Tx    int
}

// Recorder is a concurrency-safe fake db.Gateway.
type Recorder struct {
	mu         sync.Mutex
	calls      []Call
	responders map[db.Kind]Responder
	txs        int
	committed  int
	rolledBack int
	nextID     int64
}

var _ db.Gateway = (*Recorder)(nil)

// NewRecorder returns a Recorder that answers parent inserts with increasing
// ids starting at 1 and every other statement with an empty result.
func NewRecorder() *Recorder {
	return &Recorder{responders: map[db.Kind]Responder{}}
}

// On sets the responder for kind.
func (r *Recorder) On(kind db.Kind, fn Responder) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responders[kind] = fn
	return r
}

// Fail makes every statement of kind return err.
func (r *Recorder) Fail(kind db.Kind, err error) *Recorder {
	return r.On(kind, func(db.Query) (*db.Result, error) { return nil, err })
}

func (r *Recorder) Execute(ctx context.Context, q db.Query) (*db.Result, error) {
	return r.execute(ctx, q, 0)
}

func (r *Recorder) execute(_ context.Context, q db.Query, tx int) (*db.Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.calls = append(r.calls, Call{Query: q, Tx: tx})
	fn := r.responders[q.Kind]
	if fn == nil && q.Kind == db.KindInsertValueParent {
		r.nextID++
		id := r.nextID
		r.mu.Unlock()
		return &db.Result{
			Columns:      []string{"telemetry_value_parent_id"},
			Rows:         [][]any{{id}},
			RowsAffected: 1,
		}, nil
	}
	r.mu.Unlock()
	if fn != nil {
		return fn(q)
	}
	return &db.Result{}, nil
}

// WithTx runs fn and counts the transaction as committed or rolled back.
func (r *Recorder) WithTx(ctx context.Context, fn func(tx db.Executor) error) error {
	r.mu.Lock()
	r.txs++
	id := r.txs
	r.mu.Unlock()

	err := fn(txExecutor{r: r, id: id})

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.rolledBack++
		return err
	}
	r.committed++
	return nil
}

type txExecutor struct {
	r  *Recorder
	id int
}

func (t txExecutor) Execute(ctx context.Context, q db.Query) (*db.Result, error) {
	return t.r.execute(ctx, q, t.id)
}

// Calls returns the executed statements in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Queries returns the executed statements of kind.
func (r *Recorder) Queries(kind db.Kind) []db.Query {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db.Query
	for _, c := range r.calls {
		if c.Query.Kind == kind {
			out = append(out, c.Query)
		}
	}
	return out
}

// Count is the number of statements of kind.
func (r *Recorder) Count(kind db.Kind) int { return len(r.Queries(kind)) }

// Kinds lists the kinds executed, in order.
func (r *Recorder) Kinds() []db.Kind {
	calls := r.Calls()
	out := make([]db.Kind, len(calls))
	for i, c := range calls {
		out[i] = c.Query.Kind
	}
	return out
}

// Committed and RolledBack count finished transactions.
func (r *Recorder) Committed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed
}

func (r *Recorder) RolledBack() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rolledBack
}

// Rows returns a responder answering with a single column result.
func Rows(column string, values ...any) Responder {
	return func(db.Query) (*db.Result, error) {
		res := &db.Result{Columns: []string{column}}
		for _, v := range values {
			res.Rows = append(res.Rows, []any{v})
		}
		return res, nil
	}
}
