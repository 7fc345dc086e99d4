package processing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/dedup"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/db"
	gateway "github.com/ReimaoHenrique/api-mercadolivre/kit/external_payment_gateway"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

func detail(ref, status string) *gateway.PaymentDetail {
	return &gateway.PaymentDetail{
		ID:                1234,
		Status:            status,
		ExternalReference: ref,
		TransactionAmount: decimal.RequireFromString("150.00"),
		CurrencyID:        "BRL",
		Payer:             gateway.Payer{Email: "buyer@example.com"},
	}
}

func TestRouter_Route(t *testing.T) {
	ctx := context.Background()
	procErr := errors.New("partial")

	var tests = []struct {
		name           string
		detail         *gateway.PaymentDetail
		preClaim       bool
		processor      func() *ProcessorMock
		expectedAction string
		expectedErr    error
		expectStored   bool
		expectClaimed  bool
	}{
		{
			name:   "approved and claimed is processed",
			detail: detail("COURSE_1", "approved"),
			processor: func() *ProcessorMock {
				m := new(ProcessorMock)
				m.On("ProcessApproved", ctx, mock.Anything, Options{Source: "webhook"}).Return(Result{Outcome: OutcomeProcessed}, nil).Once()
				return m
			},
			expectedAction: ActionProcessed,
			expectStored:   true,
			expectClaimed:  true,
		},
		{
			name:           "approved while claimed elsewhere is stored only",
			detail:         detail("COURSE_1", "approved"),
			preClaim:       true,
			processor:      func() *ProcessorMock { return new(ProcessorMock) },
			expectedAction: ActionInFlight,
			expectStored:   true,
			expectClaimed:  true,
		},
		{
			name:   "processing error releases the claim",
			detail: detail("COURSE_1", "approved"),
			processor: func() *ProcessorMock {
				m := new(ProcessorMock)
				m.On("ProcessApproved", ctx, mock.Anything, Options{Source: "webhook"}).Return(Result{Outcome: OutcomePartial}, procErr).Once()
				return m
			},
			expectedAction: string(OutcomePartial),
			expectedErr:    procErr,
			expectStored:   true,
		},
		{
			name:           "pending is stored",
			detail:         detail("PRODUCT_2", "pending"),
			processor:      func() *ProcessorMock { return new(ProcessorMock) },
			expectedAction: ActionStored,
			expectStored:   true,
		},
		{
			name:           "charged back is stored",
			detail:         detail("PRODUCT_2", "charged_back"),
			processor:      func() *ProcessorMock { return new(ProcessorMock) },
			expectedAction: ActionStored,
			expectStored:   true,
		},
		{
			name:           "unknown status is ignored",
			detail:         detail("PRODUCT_2", "weird"),
			processor:      func() *ProcessorMock { return new(ProcessorMock) },
			expectedAction: ActionIgnored,
		},
		{
			name:           "missing reference is ignored",
			detail:         detail("", "approved"),
			processor:      func() *ProcessorMock { return new(ProcessorMock) },
			expectedAction: ActionIgnored,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := newRepo(t)
			claimer := dedup.NewMemoryClaimer(0, nil)
			defer claimer.Close()
			if tt.preClaim {
				_, ok := claimer.TryClaim(ctx, tt.detail.ExternalReference, dedup.DefaultTTL)
				require.True(t, ok)
			}
			proc := tt.processor()
			r := NewRouter(RouterDeps{Store: repo, Claimer: claimer, Processor: proc})

			res, err := r.Route(ctx, tt.detail, "webhook")
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.expectedAction, res.Action)
			proc.AssertExpectations(t)

			if tt.detail.ExternalReference == "" {
				return
			}
			stored, err := repo.Get(ctx, tt.detail.ExternalReference)
			if tt.expectStored {
				require.NoError(t, err)
				require.Equal(t, payment.Status(tt.detail.Status), stored.Status)
				require.Equal(t, "1234", stored.PaymentID)
			} else {
				require.True(t, db.IsNotFound(err))
			}
			_, ok := claimer.TryClaim(ctx, tt.detail.ExternalReference, dedup.DefaultTTL)
			require.Equal(t, !tt.expectClaimed, ok)
		})
	}
}

// tokenClaimer remembers the last token it handed out.
type tokenClaimer struct {
	*dedup.MemoryClaimer
	last string
}

func (c *tokenClaimer) TryClaim(ctx context.Context, key string, ttl time.Duration) (string, bool) {
	token, ok := c.MemoryClaimer.TryClaim(ctx, key, ttl)
	if ok {
		c.last = token
	}
	return token, ok
}

func TestRouter_DuplicateApprovedNotifications(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)
	logger := observability.FromZap(zap.New(core))

	repo := newRepo(t)
	claimer := &tokenClaimer{MemoryClaimer: dedup.NewMemoryClaimer(0, nil)}
	defer claimer.Close()
	c := &counters{}
	proc := NewProcessor(ProcessorDeps{Store: repo, Activator: c, Syncer: c, Notifier: c, Logger: logger})
	r := NewRouter(RouterDeps{Store: repo, Claimer: claimer, Processor: proc, Logger: logger})

	actions := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		res, err := r.Route(ctx, detail("COURSE_1", "approved"), "webhook")
		require.NoError(t, err)
		actions = append(actions, res.Action)
	}

	require.Equal(t, []string{ActionProcessed, ActionAlreadyProcessed, ActionAlreadyProcessed}, actions)
	require.EqualValues(t, 1, c.activations.Load())
	require.EqualValues(t, 1, c.notifications.Load())
	require.Equal(t, 2, logs.FilterMessage("already processed").Len())

	// once the claim expires the processor itself rejects the repeat
	claimer.Release(ctx, "COURSE_1", claimer.last)
	res, err := r.Route(ctx, detail("COURSE_1", "approved"), "webhook")
	require.NoError(t, err)
	require.Equal(t, ActionAlreadyProcessed, res.Action)
	require.EqualValues(t, 1, c.activations.Load())
}

func TestRouter_FreshDetailOverridesStaleRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t)
	_, err := repo.Upsert(ctx, &payment.PaymentRecord{ExternalReference: "COURSE_8", Status: payment.StatusPending, StatusDetail: "pending_waiting_payment"})
	require.NoError(t, err)

	claimer := dedup.NewMemoryClaimer(0, nil)
	defer claimer.Close()
	c := &counters{}
	proc := NewProcessor(ProcessorDeps{Store: repo, Activator: c, Syncer: c, Notifier: c})
	r := NewRouter(RouterDeps{Store: repo, Claimer: claimer, Processor: proc})

	d := detail("COURSE_8", "approved")
	d.StatusDetail = "accredited"
	res, err := r.Route(ctx, d, "webhook")
	require.NoError(t, err)
	require.Equal(t, ActionProcessed, res.Action)

	stored, err := repo.Get(ctx, "COURSE_8")
	require.NoError(t, err)
	require.Equal(t, payment.StatusApproved, stored.Status)
	require.Equal(t, "accredited", stored.StatusDetail)
	require.True(t, stored.Completed())
	require.EqualValues(t, 1, c.activations.Load())
}
