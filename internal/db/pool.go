package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"floodsync/internal/logging"
)

// Executor runs a single query.
type Executor interface {
	Execute(ctx context.Context, q Query) (*Result, error)
}

// Gateway is an Executor that can also run a function inside a transaction.
// The transaction is rolled back if fn returns an error.
type Gateway interface {
	Executor
	WithTx(ctx context.Context, fn func(tx Executor) error) error
}

// Result holds the rows returned by a query.
type Result struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
}

// Int64 returns column col of the first row as an int64.
func (r *Result) Int64(col string) (int64, error) {
	if r == nil || len(r.Rows) == 0 {
		return 0, fmt.Errorf("column %s: %w", col, pgx.ErrNoRows)
	}
	return r.Int64At(0, col)
}

// Int64At returns column col of row i as an int64.
func (r *Result) Int64At(i int, col string) (int64, error) {
	idx := -1
	for j, c := range r.Columns {
		if c == col {
			idx = j
			break
		}
	}
	if idx < 0 {
		return 0, fmt.Errorf("column %s not in result", col)
	}
	if i >= len(r.Rows) || idx >= len(r.Rows[i]) {
		return 0, fmt.Errorf("column %s row %d out of range", col, i)
	}
	switch v := r.Rows[i][idx].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case nil:
		return 0, fmt.Errorf("column %s row %d is null", col, i)
	default:
		return 0, fmt.Errorf("column %s row %d has type %T", col, i, v)
	}
}

// Option configures Open.
type Option func(*options)

type options struct {
	maxConns int32
	logger   *zap.Logger
}

// WithMaxConns limits the pool size.
func WithMaxConns(n int32) Option {
	return func(o *options) { o.maxConns = n }
}

// WithLogger sets the logger used for query failures and slow queries.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Pool is the database gateway backed by a pgx connection pool.
type Pool struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// Open creates the pool and verifies connectivity.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Pool, error) {
	o := options{maxConns: 10}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if o.maxConns > 0 {
		cfg.MaxConns = o.maxConns
	}
	cfg.MinConns = 0

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Pool{pool: pool, log: logging.OrNop(o.logger)}, nil
}

// Close releases every connection. Lambdas must call it before returning so
// idle connections are not left open until the server times them out.
func (p *Pool) Close() {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
}

// Execute acquires a connection, runs q and releases the connection.
func (p *Pool) Execute(ctx context.Context, q Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for %s: %w", q.Kind, err)
	}
	defer conn.Release()

	return p.run(ctx, conn, q)
}

// WithTx runs fn inside a transaction on a single pooled connection.
func (p *Pool) WithTx(ctx context.Context, fn func(tx Executor) error) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return fn(&txExecutor{tx: tx, pool: p})
	})
}

type txExecutor struct {
	tx   pgx.Tx
	pool *Pool
}

func (t *txExecutor) Execute(ctx context.Context, q Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return t.pool.run(ctx, t.tx, q)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (p *Pool) run(ctx context.Context, qr querier, q Query) (*Result, error) {
	start := time.Now()
	res, err := collect(ctx, qr, q)
	elapsed := time.Since(start)
	if err != nil {
		p.log.Error("query failed",
			zap.Stringer("query", q.Kind),
			zap.Int("args", len(q.Args)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s: %w", q.Kind, err)
	}
	p.log.Debug("query executed",
		zap.Stringer("query", q.Kind),
		zap.Int64("rows_affected", res.RowsAffected),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

func collect(ctx context.Context, qr querier, q Query) (*Result, error) {
	rows, err := qr.Query(ctx, q.Text, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := &Result{}
	for _, fd := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, values)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res.RowsAffected = rows.CommandTag().RowsAffected()
	return res, nil
}

// ExecuteAll runs every query even when earlier ones fail and returns the
// joined errors.
func ExecuteAll(ctx context.Context, e Executor, queries []Query) error {
	var errs []error
	for _, q := range queries {
		if _, err := e.Execute(ctx, q); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sequence runs queries in order and stops at the first failure.
func Sequence(ctx context.Context, e Executor, queries []Query) error {
	for _, q := range queries {
		if _, err := e.Execute(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
