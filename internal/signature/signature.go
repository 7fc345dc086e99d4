// Package signature authenticates Mercado Pago webhook notifications.
//
// The sender signs the manifest "id:<eventId>;request-id:<requestId>;ts:<ts>;"
// with HMAC-SHA256 and sends "ts=<unix>,v1=<hex>" in the x-signature header.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

const DefaultTolerance = 300 * time.Second

var (
	ErrMalformedHeader = errors.New("signature: malformed header")
	ErrMismatch        = errors.New("signature: mismatch")
	ErrStale           = errors.New("signature: stale timestamp")
	ErrMissingSecret   = errors.New("signature: secret not configured")
)

type Header struct {
	TS string
	V1 string
}

// Unix returns the parsed ts value.
func (h Header) Unix() (int64, error) {
	n, err := strconv.ParseInt(h.TS, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: ts %q is not a unix timestamp", ErrMalformedHeader, h.TS)
	}
	return n, nil
}

// ParseHeader reads comma-separated key=value pairs. Unknown keys are ignored.
func ParseHeader(raw string) (Header, error) {
	var h Header
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "ts":
			h.TS = strings.TrimSpace(v)
		case "v1":
			h.V1 = strings.TrimSpace(v)
		}
	}
	if h.TS == "" || h.V1 == "" {
		return Header{}, fmt.Errorf("%w: ts and v1 are required", ErrMalformedHeader)
	}
	return h, nil
}

func Manifest(eventID, requestID, ts string) string {
	return "id:" + eventID + ";request-id:" + requestID + ";ts:" + ts + ";"
}

// Sign returns the lowercase hex HMAC-SHA256 of the manifest.
func Sign(secret, eventID, requestID, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Manifest(eventID, requestID, ts)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the v1 digest of header. Mercado Pago signs only the
// data id, the x-request-id and ts, so rawBody is not inspected: a tampered
// body with valid headers still verifies, and callers must not trust body
// fields beyond the data id they pass in.
func Verify(header, requestID, eventID string, rawBody []byte, secret string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	h, err := ParseHeader(header)
	if err != nil {
		return err
	}
	expected := Sign(secret, eventID, requestID, h.TS)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(h.V1))) {
		return ErrMismatch
	}
	return nil
}

// VerifyFreshness rejects a ts further than tolerance from now in either
// direction. The boundary itself is accepted.
func VerifyFreshness(header string, tolerance time.Duration, now time.Time) error {
	h, err := ParseHeader(header)
	if err != nil {
		return err
	}
	ts, err := h.Unix()
	if err != nil {
		return err
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return fmt.Errorf("%w: skew %s exceeds %s", ErrStale, skew.Truncate(time.Second), tolerance)
	}
	return nil
}

type Config struct {
	Secret           string
	Tolerance        time.Duration
	EnforceFreshness bool
}

// Verifier binds the shared secret and freshness policy. With
// EnforceFreshness off a stale signature is logged and accepted.
type Verifier struct {
	cfg    Config
	logger *observability.Logger
	now    func() time.Time
}

func NewVerifier(cfg Config, logger *observability.Logger) *Verifier {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	return &Verifier{cfg: cfg, logger: logger, now: time.Now}
}

func (v *Verifier) Verify(header, requestID, eventID string, rawBody []byte) error {
	if err := Verify(header, requestID, eventID, rawBody, v.cfg.Secret); err != nil {
		v.logger.Warn("signature rejected", "layer", "signature", "request_id", requestID, "event_id", eventID, "err", err)
		return err
	}
	if err := VerifyFreshness(header, v.cfg.Tolerance, v.now()); err != nil {
		if v.cfg.EnforceFreshness {
			v.logger.Warn("signature rejected", "layer", "signature", "request_id", requestID, "event_id", eventID, "err", err)
			return err
		}
		v.logger.Warn("stale signature accepted", "layer", "signature", "request_id", requestID, "event_id", eventID, "err", err)
	}
	return nil
}
