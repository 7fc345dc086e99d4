// Package statussync pushes confirmed payment states to the downstream
// events API.
package statussync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

const DefaultTimeout = 10 * time.Second

var (
	ErrNotConfigured    = errors.New("statussync: url or token not configured")
	ErrUnexpectedStatus = errors.New("statussync: unexpected response status")
)

type Mapped string

const (
	MappedConfirmed Mapped = "confirmed"
	MappedPending   Mapped = "pending"
	MappedCancelled Mapped = "cancelled"
)

// MapStatus translates a gateway status into the downstream vocabulary.
// The second result is false when the status has no downstream meaning.
func MapStatus(s payment.Status) (Mapped, bool) {
	switch s {
	case payment.StatusApproved:
		return MappedConfirmed, true
	case payment.StatusPending:
		return MappedPending, true
	case payment.StatusCancelled, payment.StatusRejected:
		return MappedCancelled, true
	}
	return "", false
}

type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *observability.Logger
}

func NewClient(cfg Config, logger *observability.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *Client) Configured() bool {
	return c.cfg.URL != "" && c.cfg.Token != ""
}

type updateBody struct {
	ID     string `json:"id"`
	Status Mapped `json:"status"`
}

// SyncStatus sends PUT {id, status} for ref. Unmapped statuses are a no-op
// and report (false, nil).
func (c *Client) SyncStatus(ctx context.Context, ref string, status payment.Status) (bool, error) {
	mapped, ok := MapStatus(status)
	if !ok {
		c.logger.Info("status has no downstream mapping", "layer", "client", "component", "statussync", "external_reference", ref, "status", string(status))
		return false, nil
	}
	if !c.Configured() {
		c.logger.Error("downstream sync not configured", "layer", "client", "component", "statussync", "external_reference", ref)
		return false, ErrNotConfigured
	}

	payload, err := json.Marshal(updateBody{ID: ref, Status: mapped})
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("downstream sync failed", "layer", "client", "component", "statussync", "external_reference", ref, "status", string(mapped), "err", err)
		return false, fmt.Errorf("statussync: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("downstream sync unexpected status", "layer", "client", "component", "statussync", "external_reference", ref, "status", string(mapped), "response_status", resp.StatusCode, "response", string(body))
		return false, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	c.logger.Info("downstream status updated", "layer", "client", "component", "statussync", "external_reference", ref, "status", string(mapped), "response_status", resp.StatusCode)
	return true, nil
}
