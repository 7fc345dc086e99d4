package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Postgres implements Client on top of sqlx and lib/pq.
type Postgres struct {
	db  *sqlx.DB
	dsn string
	ext sqlx.ExtContext
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.Join(ErrInternal, fmt.Errorf("connect postgres: %w", err))
	}
	return &Postgres{db: conn, dsn: dsn, ext: conn}, nil
}

// Migrate applies every pending up migration found under dir in fsys.
func (p *Postgres) Migrate(fsys fs.FS, dir string) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return errors.Join(ErrInternal, fmt.Errorf("open migrations: %w", err))
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, p.dsn)
	if err != nil {
		return errors.Join(ErrInternal, fmt.Errorf("init migrate: %w", err))
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Join(ErrInternal, fmt.Errorf("migrate up: %w", err))
	}
	return nil
}

func (p *Postgres) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execOn(ctx, p.ext, query, args...)
}

func (p *Postgres) QueryRow(ctx context.Context, query string, args ...any) (Row, error) {
	return queryRowOn(ctx, p.ext, query, args...)
}

func (p *Postgres) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return queryOn(ctx, p.ext, query, args...)
}

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx Client) error) (err error) {
	tx, err := p.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translate(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("tx failed: %w, rollback failed: %v", err, rbErr)
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = translate(fmt.Errorf("commit tx: %w", cErr))
		}
	}()

	return fn(ctx, &txClient{tx: tx})
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return translate(err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

type txClient struct {
	tx *sqlx.Tx
}

func (t *txClient) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execOn(ctx, t.tx, query, args...)
}

func (t *txClient) QueryRow(ctx context.Context, query string, args ...any) (Row, error) {
	return queryRowOn(ctx, t.tx, query, args...)
}

func (t *txClient) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return queryOn(ctx, t.tx, query, args...)
}

// InTx on an open transaction joins it.
func (t *txClient) InTx(ctx context.Context, fn func(ctx context.Context, tx Client) error) error {
	return fn(ctx, t)
}

func (t *txClient) Ping(ctx context.Context) error { return nil }

func (t *txClient) Close() error { return nil }

func execOn(ctx context.Context, ext sqlx.ExtContext, query string, args ...any) (int64, error) {
	res, err := ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func queryRowOn(ctx context.Context, ext sqlx.ExtContext, query string, args ...any) (Row, error) {
	row := ext.QueryRowxContext(ctx, query, args...)
	if err := row.Err(); err != nil {
		return nil, translate(err)
	}
	return &translatedRow{row: row}, nil
}

func queryOn(ctx context.Context, ext sqlx.ExtContext, query string, args ...any) (Rows, error) {
	rows, err := ext.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

type translatedRow struct {
	row *sqlx.Row
}

func (r *translatedRow) Scan(dest ...any) error {
	return translate(r.row.Scan(dest...))
}
