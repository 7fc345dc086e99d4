package db

import "context"

type Row interface {
	Scan(dest ...any) error
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Client is the narrow SQL surface repositories depend on. Implementations
// return errors already mapped onto ErrNotFound, ErrConflict or ErrInternal.
type Client interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	QueryRow(ctx context.Context, query string, args ...any) (Row, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	// InTx runs fn inside one transaction; fn receives a Client bound to it.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Client) error) error
	Ping(ctx context.Context) error
	Close() error
}
