package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

var (
	ErrInvalidJSON  = errors.New("invalid json")
	ErrBodyTooLarge = errors.New("body too large")
)

type JSON struct {
	MaxBytes int64
}

func NewJSON() *JSON {
	return &JSON{MaxBytes: 1 << 20}
}

// ReadBody returns the raw request body, capped at MaxBytes.
func (v *JSON) ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, v.MaxBytes)
	defer func() { _ = body.Close() }()
	b, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrBodyTooLarge
		}
		return nil, err
	}
	return b, nil
}

// Decode reads exactly one JSON value and rejects unknown fields.
func (v *JSON) Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	b, err := v.ReadBody(w, r)
	if err != nil {
		return err
	}
	return DecodeStrict(b, dst)
}

func DecodeStrict(b []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return ErrInvalidJSON
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return ErrInvalidJSON
	}
	return nil
}

// DecodeLenient accepts unknown fields; an empty body leaves dst untouched.
func DecodeLenient(b []byte, dst any) error {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return ErrInvalidJSON
	}
	return nil
}
