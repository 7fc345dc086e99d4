package webhook

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/activation"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/dedup"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/processing"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/signature"
	gateway "github.com/ReimaoHenrique/api-mercadolivre/kit/external_payment_gateway"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

const secret = "whsec_test"

type effects struct {
	activations   atomic.Int32
	notifications atomic.Int32
}

func (e *effects) Activate(ctx context.Context, rec *payment.PaymentRecord) (activation.Kind, error) {
	e.activations.Add(1)
	return activation.Classify(rec.ExternalReference), nil
}

func (e *effects) SyncStatus(ctx context.Context, ref string, status payment.Status) (bool, error) {
	return true, nil
}

func (e *effects) SendConfirmation(ctx context.Context, rec *payment.PaymentRecord) error {
	e.notifications.Add(1)
	return nil
}

type harness struct {
	svc     *Service
	repo    *payment.FileRepository
	gw      *gateway.FakeGateway
	effects *effects
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	logger := observability.FromZap(zap.New(core))

	repo, err := payment.NewFileRepository(t.TempDir(), nil)
	require.NoError(t, err)
	claimer := dedup.NewMemoryClaimer(0, nil)
	t.Cleanup(func() { claimer.Close() })

	fx := &effects{}
	proc := processing.NewProcessor(processing.ProcessorDeps{Store: repo, Activator: fx, Syncer: fx, Notifier: fx, Logger: logger})
	router := processing.NewRouter(processing.RouterDeps{Store: repo, Claimer: claimer, Processor: proc, Logger: logger})
	gw := gateway.NewFakeGateway()

	svc := NewService(Deps{
		Verifier: signature.NewVerifier(signature.Config{Secret: secret}, logger),
		Fetcher:  gw,
		Router:   router,
		Logger:   logger,
	})
	return &harness{svc: svc, repo: repo, gw: gw, effects: fx, logs: logs}
}

func signedRequest(dataID, requestID string) Request {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	raw := []byte(`{"type":"payment","action":"payment.updated","data":{"id":"` + dataID + `"}}`)
	var n Notification
	_ = json.Unmarshal(raw, &n)
	return Request{
		Body:        n,
		RawBody:     raw,
		QueryDataID: dataID,
		Signature:   "ts=" + ts + ",v1=" + signature.Sign(secret, dataID, requestID, ts),
		RequestID:   requestID,
	}
}

func approved(id int64, ref string) gateway.PaymentDetail {
	return gateway.PaymentDetail{
		ID:                id,
		Status:            "approved",
		ExternalReference: ref,
		TransactionAmount: decimal.RequireFromString("150.00"),
		CurrencyID:        "BRL",
		Payer:             gateway.Payer{Email: "buyer@example.com"},
	}
}

func TestService_Handle(t *testing.T) {
	ctx := context.Background()

	var tests = []struct {
		name           string
		request        func() Request
		setup          func(h *harness)
		expectedStatus Status
		expectedErr    error
		anyErr         bool
	}{
		{
			name: "non payment notification is ignored",
			request: func() Request {
				r := signedRequest("1", "req-1")
				r.Body.Type = "merchant_order"
				return r
			},
			expectedStatus: StatusIgnored,
		},
		{
			name: "missing id is ignored",
			request: func() Request {
				r := signedRequest("", "req-1")
				return r
			},
			expectedStatus: StatusIgnored,
		},
		{
			name: "tampered signature is rejected",
			request: func() Request {
				r := signedRequest("123", "req-1")
				r.RequestID = "req-2"
				return r
			},
			expectedStatus: StatusUnauthorized,
			expectedErr:    signature.ErrMismatch,
		},
		{
			name: "missing signature is rejected",
			request: func() Request {
				r := signedRequest("123", "req-1")
				r.Signature = ""
				return r
			},
			expectedStatus: StatusUnauthorized,
			expectedErr:    ErrUnauthorized,
		},
		{
			name:           "gateway failure still acknowledges",
			request:        func() Request { return signedRequest("404", "req-1") },
			expectedStatus: StatusSuccess,
			anyErr:         true,
		},
		{
			name:    "pending payment is stored",
			request: func() Request { return signedRequest("77", "req-1") },
			setup: func(h *harness) {
				d := approved(77, "PRODUCT_1")
				d.Status = "pending"
				h.gw.Put(d)
			},
			expectedStatus: StatusSuccess,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}
			res, err := h.svc.Handle(ctx, tt.request())
			require.Equal(t, tt.expectedStatus, res.Status)
			switch {
			case tt.expectedErr != nil:
				require.ErrorIs(t, err, tt.expectedErr)
			case tt.anyErr:
				require.Error(t, err)
			default:
				require.NoError(t, err)
			}
			require.Zero(t, h.effects.activations.Load())
		})
	}
}

func TestService_ApprovedPaymentIsProcessed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	h.gw.Put(approved(123456, "COURSE_ABC"))

	res, err := h.svc.Handle(ctx, signedRequest("123456", "req-1"))
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, processing.ActionProcessed, res.Message)

	rec, err := h.repo.Get(ctx, "COURSE_ABC")
	require.NoError(t, err)
	require.Equal(t, payment.StatusApproved, rec.Status)
	require.Equal(t, "123456", rec.PaymentID)
	require.True(t, rec.Completed())
	require.True(t, rec.ProcessingState.BusinessActivated)
	require.True(t, rec.ProcessingState.NotificationSent)
	require.Equal(t, "course", rec.BusinessLogic.ReferenceType)
	require.EqualValues(t, 1, h.effects.activations.Load())
	require.EqualValues(t, 1, h.effects.notifications.Load())
}

func TestService_DuplicateDeliveryIsAlreadyProcessed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	h.gw.Put(approved(555, "PRODUCT_X"))

	first, err := h.svc.Handle(ctx, signedRequest("555", "req-1"))
	require.NoError(t, err)
	require.Equal(t, processing.ActionProcessed, first.Message)

	second, err := h.svc.Handle(ctx, signedRequest("555", "req-2"))
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, second.Status)
	require.Equal(t, processing.ActionAlreadyProcessed, second.Message)

	require.EqualValues(t, 1, h.effects.activations.Load())
	require.EqualValues(t, 1, h.effects.notifications.Load())
	require.Equal(t, 1, h.logs.FilterMessage("already processed").Len())
	require.EqualValues(t, 2, h.gw.Fetches())
}

func TestService_FetchTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.gw.Put(approved(9, "COURSE_9"))
	h.gw.SetDelay(time.Second)
	h.svc.fetchTimeout = 20 * time.Millisecond

	res, err := h.svc.Handle(context.Background(), signedRequest("9", "req-1"))
	require.Equal(t, StatusSuccess, res.Status)
	require.Error(t, err)
	require.Zero(t, h.effects.activations.Load())
}

func TestFlexibleID(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name     string
		in       string
		expected FlexibleID
		wantErr  bool
	}{
		{name: "string", in: `"123"`, expected: "123"},
		{name: "number", in: `123456789012`, expected: "123456789012"},
		{name: "null", in: `null`, expected: ""},
		{name: "object", in: `{}`, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var id FlexibleID
			err := json.Unmarshal([]byte(tt.in), &id)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, id)
		})
	}
}

func TestRequest_DataID(t *testing.T) {
	t.Parallel()

	r := Request{Body: Notification{Data: NotificationData{ID: "body"}}}
	require.Equal(t, "body", r.DataID())
	r.QueryDataID = "query"
	require.Equal(t, "query", r.DataID())
}
