package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	secret    = "s3cr3t"
	eventID   = "123456"
	requestID = "bb56a2f1-6aae-46ac-982e-9dcd3581d08e"
	ts        = "1742505638"
)

func referenceDigest(secret, manifest string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestSign_MatchesReferenceDigest(t *testing.T) {
	t.Parallel()

	manifest := "id:123456;request-id:bb56a2f1-6aae-46ac-982e-9dcd3581d08e;ts:1742505638;"
	require.Equal(t, manifest, Manifest(eventID, requestID, ts))
	require.Equal(t, referenceDigest(secret, manifest), Sign(secret, eventID, requestID, ts))
}

func TestParseHeader(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name        string
		raw         string
		expected    Header
		expectedErr error
	}{
		{name: "canonical", raw: "ts=1,v1=abc", expected: Header{TS: "1", V1: "abc"}},
		{name: "spaces and unknown keys", raw: " ts = 1 , foo=bar, v1= abc ", expected: Header{TS: "1", V1: "abc"}},
		{name: "missing v1", raw: "ts=1", expectedErr: ErrMalformedHeader},
		{name: "missing ts", raw: "v1=abc", expectedErr: ErrMalformedHeader},
		{name: "empty", raw: "", expectedErr: ErrMalformedHeader},
		{name: "garbage", raw: "garbage", expectedErr: ErrMalformedHeader},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, err := ParseHeader(tt.raw)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, h)
		})
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	good := Sign(secret, eventID, requestID, ts)
	header := fmt.Sprintf("ts=%s,v1=%s", ts, good)
	require.NoError(t, Verify(header, requestID, eventID, []byte(`{"data":{"id":"123456"}}`), secret))
	// the body is outside the signed manifest
	require.NoError(t, Verify(header, requestID, eventID, []byte(`{"data":{"id":"999"}}`), secret))

	flip := func(s string) string {
		b := []byte(s)
		if b[len(b)-1] == 'a' {
			b[len(b)-1] = 'b'
		} else {
			b[len(b)-1] = 'a'
		}
		return string(b)
	}

	var tests = []struct {
		name      string
		header    string
		requestID string
		eventID   string
		secret    string
		expected  error
	}{
		{name: "mutated event id", header: header, requestID: requestID, eventID: flip(eventID), secret: secret, expected: ErrMismatch},
		{name: "mutated request id", header: header, requestID: flip(requestID), eventID: eventID, secret: secret, expected: ErrMismatch},
		{name: "mutated secret", header: header, requestID: requestID, eventID: eventID, secret: flip(secret), expected: ErrMismatch},
		{name: "mutated ts", header: fmt.Sprintf("ts=%s,v1=%s", flip(ts), good), requestID: requestID, eventID: eventID, secret: secret, expected: ErrMismatch},
		{name: "mutated digest", header: fmt.Sprintf("ts=%s,v1=%s", ts, flip(good)), requestID: requestID, eventID: eventID, secret: secret, expected: ErrMismatch},
		{name: "malformed header", header: "v1=" + good, requestID: requestID, eventID: eventID, secret: secret, expected: ErrMalformedHeader},
		{name: "missing secret", header: header, requestID: requestID, eventID: eventID, secret: "", expected: ErrMissingSecret},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.ErrorIs(t, Verify(tt.header, tt.requestID, tt.eventID, nil, tt.secret), tt.expected)
		})
	}
}

func TestVerify_AcceptsUppercaseDigest(t *testing.T) {
	t.Parallel()

	sig := Sign(secret, eventID, requestID, ts)
	upper := []byte(sig)
	for i, c := range upper {
		if c >= 'a' && c <= 'f' {
			upper[i] = c - 32
		}
	}
	require.NoError(t, Verify("ts="+ts+",v1="+string(upper), requestID, eventID, nil, secret))
}

func TestVerifyFreshness(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	header := func(offset int64) string {
		return fmt.Sprintf("ts=%d,v1=abc", now.Unix()+offset)
	}

	var tests = []struct {
		name     string
		header   string
		expected error
	}{
		{name: "now", header: header(0)},
		{name: "past boundary accepted", header: header(-300)},
		{name: "future boundary accepted", header: header(300)},
		{name: "past beyond tolerance", header: header(-301), expected: ErrStale},
		{name: "future beyond tolerance", header: header(301), expected: ErrStale},
		{name: "non numeric ts", header: "ts=abc,v1=abc", expected: ErrMalformedHeader},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := VerifyFreshness(tt.header, 300*time.Second, now)
			if tt.expected == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestVerifier(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	staleTS := fmt.Sprint(now.Unix() - 3600)
	staleHeader := fmt.Sprintf("ts=%s,v1=%s", staleTS, Sign(secret, eventID, requestID, staleTS))

	warnOnly := NewVerifier(Config{Secret: secret}, nil)
	warnOnly.now = func() time.Time { return now }
	require.NoError(t, warnOnly.Verify(staleHeader, requestID, eventID, nil))

	enforcing := NewVerifier(Config{Secret: secret, EnforceFreshness: true}, nil)
	enforcing.now = func() time.Time { return now }
	require.ErrorIs(t, enforcing.Verify(staleHeader, requestID, eventID, nil), ErrStale)

	require.ErrorIs(t, enforcing.Verify(staleHeader, requestID, "other", nil), ErrMismatch)
}
