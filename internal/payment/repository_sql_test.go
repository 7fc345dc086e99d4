package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/db"
)

func docRow(t *testing.T, rec *PaymentRecord) *db.RowMock {
	t.Helper()
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	row := new(db.RowMock)
	row.On("Scan", mock.Anything).Run(func(args mock.Arguments) {
		dest := args.Get(0).([]any)
		*(dest[0].(*[]byte)) = b
	}).Return(nil)
	return row
}

func TestSQLRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	var tests = []struct {
		name        string
		client      func(t *testing.T) *db.ClientMock
		expectedErr error
		check       func(t *testing.T, got *PaymentRecord)
	}{
		{
			name: "insert when absent",
			client: func(t *testing.T) *db.ClientMock {
				c := new(db.ClientMock)
				c.On("InTx", ctx).Return(nil)
				c.On("Exec", ctx, qRecordLock, []any{"PRODUCT_9"}).Return(int64(1), nil)
				c.On("QueryRow", ctx, qRecordGet, []any{"PRODUCT_9"}).Return(nil, db.ErrNotFound)
				c.On("Exec", ctx, qRecordUpsert, mock.MatchedBy(func(args []any) bool {
					return len(args) == 8 && args[0] == "PRODUCT_9" && args[2] == "approved" && args[4] == "25"
				})).Return(int64(1), nil)
				return c
			},
			check: func(t *testing.T, got *PaymentRecord) {
				require.Equal(t, StatusApproved, got.Status)
				require.True(t, now.Equal(got.DateLastUpdated))
			},
		},
		{
			name: "merges stored document",
			client: func(t *testing.T) *db.ClientMock {
				c := new(db.ClientMock)
				c.On("InTx", ctx).Return(nil)
				c.On("Exec", ctx, qRecordLock, []any{"PRODUCT_9"}).Return(int64(1), nil)
				c.On("QueryRow", ctx, qRecordGet, []any{"PRODUCT_9"}).Return(docRow(t, &PaymentRecord{
					ExternalReference: "PRODUCT_9",
					PayerEmail:        "buyer@example.com",
					ProcessingState:   ProcessingState{NotificationSent: true},
				}), nil)
				c.On("Exec", ctx, qRecordUpsert, mock.Anything).Return(int64(1), nil)
				return c
			},
			check: func(t *testing.T, got *PaymentRecord) {
				require.Equal(t, "buyer@example.com", got.PayerEmail)
				require.True(t, got.ProcessingState.NotificationSent)
			},
		},
		{
			name: "write failure",
			client: func(t *testing.T) *db.ClientMock {
				c := new(db.ClientMock)
				c.On("InTx", ctx).Return(nil)
				c.On("Exec", ctx, qRecordLock, []any{"PRODUCT_9"}).Return(int64(1), nil)
				c.On("QueryRow", ctx, qRecordGet, []any{"PRODUCT_9"}).Return(nil, db.ErrNotFound)
				c.On("Exec", ctx, qRecordUpsert, mock.Anything).Return(int64(0), db.ErrInternal)
				return c
			},
			expectedErr: db.ErrInternal,
		},
		{
			name: "begin failure",
			client: func(t *testing.T) *db.ClientMock {
				c := new(db.ClientMock)
				c.On("InTx", ctx).Return(errors.Join(db.ErrInternal, errors.New("conn refused")))
				return c
			},
			expectedErr: db.ErrInternal,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := tt.client(t)
			repo := NewSQLRepository(c, nil)
			repo.now = func() time.Time { return now }

			got, err := repo.Upsert(ctx, &PaymentRecord{
				ExternalReference: "PRODUCT_9",
				Status:            StatusApproved,
				Amount:            ptr(decimal.NewFromInt(25)),
			})
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
			c.AssertExpectations(t)
		})
	}
}

func TestSQLRepository_Get(t *testing.T) {
	ctx := context.Background()

	c := new(db.ClientMock)
	c.On("QueryRow", ctx, qRecordGet, []any{"COURSE_1"}).Return(docRow(t, &PaymentRecord{ExternalReference: "COURSE_1", Status: StatusPending}), nil)
	c.On("QueryRow", ctx, qRecordGet, []any{"MISSING"}).Return(nil, db.ErrNotFound)

	repo := NewSQLRepository(c, nil)
	got, err := repo.Get(ctx, "COURSE_1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)

	_, err = repo.Get(ctx, "MISSING")
	require.ErrorIs(t, err, db.ErrNotFound)

	_, err = repo.Get(ctx, "bad/key")
	require.ErrorIs(t, err, db.ErrInvalid)
}

func TestSQLRepository_ListAll(t *testing.T) {
	ctx := context.Background()

	good, err := json.Marshal(&PaymentRecord{ExternalReference: "A", Status: StatusApproved})
	require.NoError(t, err)
	rows := &db.RowsMock{
		Values: [][]any{{"A", good}, {"B", []byte("{")}},
		ScanFn: func(values []any, dest ...any) error {
			*(dest[0].(*string)) = values[0].(string)
			*(dest[1].(*[]byte)) = values[1].([]byte)
			return nil
		},
	}
	c := new(db.ClientMock)
	c.On("Query", ctx, qRecordList, []any(nil)).Return(rows, nil)

	listing, err := NewSQLRepository(c, nil).ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, listing.Records, 1)
	require.Len(t, listing.Invalid, 1)
	require.Equal(t, "B", listing.Invalid[0].Reference)
	require.True(t, rows.Closed())
}

func TestSQLRepository_DeleteClearStats(t *testing.T) {
	ctx := context.Background()

	statsRows := &db.RowsMock{
		Values: [][]any{{"approved", "pix", 2, "30.50"}, {"pending", "", 1, "0"}},
		ScanFn: func(values []any, dest ...any) error {
			*(dest[0].(*string)) = values[0].(string)
			*(dest[1].(*string)) = values[1].(string)
			*(dest[2].(*int)) = values[2].(int)
			*(dest[3].(*string)) = values[3].(string)
			return nil
		},
	}
	c := new(db.ClientMock)
	c.On("Exec", ctx, qRecordDelete, []any{"A"}).Return(int64(1), nil)
	c.On("Exec", ctx, qRecordDelete, []any{"Z"}).Return(int64(0), nil)
	c.On("Exec", ctx, qRecordClear, []any(nil)).Return(int64(4), nil)
	c.On("Query", ctx, qRecordStats, []any(nil)).Return(statsRows, nil)

	repo := NewSQLRepository(c, nil)

	deleted, err := repo.Delete(ctx, "A")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = repo.Delete(ctx, "Z")
	require.NoError(t, err)
	require.False(t, deleted)

	n, err := repo.Clear(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	st, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, st.Count)
	require.Equal(t, 2, st.CountByStatus["approved"])
	require.Equal(t, map[string]int{"pix": 2}, st.CountByPaymentMethod)
	require.True(t, decimal.RequireFromString("30.5").Equal(st.TotalAmount))
}

func TestMigrationsEmbedded(t *testing.T) {
	b, err := Migrations.ReadFile("migrations/0001_create_payment_records.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(b), "payment_records")
}
