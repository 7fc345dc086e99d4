package db

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type ClientMock struct {
	mock.Mock
	Client
}

func (m *ClientMock) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	ret := m.Called(ctx, query, args)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *ClientMock) QueryRow(ctx context.Context, query string, args ...any) (Row, error) {
	ret := m.Called(ctx, query, args)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).(Row), ret.Error(1)
}

func (m *ClientMock) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	ret := m.Called(ctx, query, args)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).(Rows), ret.Error(1)
}

// InTx runs fn against the mock itself so expectations set on m apply inside the transaction.
func (m *ClientMock) InTx(ctx context.Context, fn func(ctx context.Context, tx Client) error) error {
	ret := m.Called(ctx)
	if err := ret.Error(0); err != nil {
		return err
	}
	return fn(ctx, m)
}

func (m *ClientMock) Ping(ctx context.Context) error {
	ret := m.Called(ctx)
	return ret.Error(0)
}

func (m *ClientMock) Close() error {
	ret := m.Called()
	return ret.Error(0)
}

type RowMock struct {
	mock.Mock
	Row
}

func (m *RowMock) Scan(dest ...any) error {
	ret := m.Called(dest)
	return ret.Error(0)
}

// RowsMock replays fixed rows; each row is the list of values copied into Scan's pointers.
type RowsMock struct {
	Values [][]any
	ScanFn func(values []any, dest ...any) error
	ErrVal error

	pos    int
	closed bool
}

func (r *RowsMock) Next() bool {
	if r.pos >= len(r.Values) {
		return false
	}
	r.pos++
	return true
}

func (r *RowsMock) Scan(dest ...any) error {
	return r.ScanFn(r.Values[r.pos-1], dest...)
}

func (r *RowsMock) Err() error { return r.ErrVal }

func (r *RowsMock) Close() error {
	r.closed = true
	return nil
}

func (r *RowsMock) Closed() bool { return r.closed }
