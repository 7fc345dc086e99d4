package notification

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ReimaoHenrique/api-mercadolivre/internal/activation"
	"github.com/ReimaoHenrique/api-mercadolivre/internal/payment"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

var ErrNoRecipient = errors.New("notification: record has no email or phone")

// AccessInfo is what the buyer needs to use what they paid for.
type AccessInfo struct {
	PaymentLink  string `json:"payment_link,omitempty"`
	DownloadLink string `json:"download_link,omitempty"`
	AccessURL    string `json:"access_url,omitempty"`
	Username     string `json:"username,omitempty"`
}

type Message struct {
	Channel           string
	To                string
	ExternalReference string
	PaymentID         string
	Amount            string
	Access            AccessInfo
}

// Sender delivers one confirmation message over one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Service struct {
	baseURL string
	sender  Sender
	logger  *observability.Logger
}

// NewService builds a confirmation notifier. A nil sender logs messages instead of sending them.
func NewService(baseURL string, sender Sender, logger *observability.Logger) *Service {
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	s := &Service{baseURL: strings.TrimRight(baseURL, "/"), sender: sender, logger: logger}
	if s.sender == nil {
		s.sender = &LogSender{logger: logger}
	}
	return s
}

// SendConfirmation notifies the payer over every channel the record carries.
// It returns an error if no channel succeeded.
func (s *Service) SendConfirmation(ctx context.Context, rec *payment.PaymentRecord) error {
	access := s.AccessInfo(rec)
	base := Message{
		ExternalReference: rec.ExternalReference,
		PaymentID:         rec.PaymentID,
		Access:            access,
	}
	if rec.Amount != nil {
		base.Amount = rec.Amount.StringFixed(2) + " " + rec.Currency
	}

	var targets []Message
	if rec.PayerEmail != "" {
		m := base
		m.Channel, m.To = "email", rec.PayerEmail
		targets = append(targets, m)
	}
	if rec.PayerPhone != "" {
		m := base
		m.Channel, m.To = "sms", rec.PayerPhone
		targets = append(targets, m)
	}
	if len(targets) == 0 {
		s.logger.Warn("confirmation skipped", "layer", "service", "component", "notification", "external_reference", rec.ExternalReference, "err", ErrNoRecipient)
		return ErrNoRecipient
	}

	var errs []error
	delivered := 0
	for _, m := range targets {
		if err := s.sender.Send(ctx, m); err != nil {
			s.logger.Error("confirmation failed", "layer", "service", "component", "notification", "channel", m.Channel, "external_reference", rec.ExternalReference, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", m.Channel, err))
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("payment confirmation sent", "layer", "service", "component", "notification", "external_reference", rec.ExternalReference, "payment_id", rec.PaymentID, "channels", delivered)
	return nil
}

func (s *Service) AccessInfo(rec *payment.PaymentRecord) AccessInfo {
	ref := rec.ExternalReference
	switch activation.Classify(ref) {
	case activation.KindCourse:
		return AccessInfo{
			PaymentLink: s.baseURL + "/course/access/" + ref,
			AccessURL:   s.baseURL + "/course/login",
			Username:    rec.PayerEmail,
		}
	case activation.KindProduct:
		return AccessInfo{DownloadLink: s.baseURL + "/download/" + ref + "?token=" + downloadToken()}
	case activation.KindService:
		return AccessInfo{PaymentLink: s.baseURL + "/service/activate/" + ref}
	default:
		return AccessInfo{PaymentLink: s.baseURL + "/payment/confirmation/" + rec.PaymentID}
	}
}

func downloadToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "unavailable"
	}
	return hex.EncodeToString(b)
}

// LogSender writes confirmations to the log. It is the default until a real
// email/SMS provider is wired.
type LogSender struct {
	logger *observability.Logger
}

func NewLogSender(logger *observability.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.logger.Info("confirmation dispatched",
		"layer", "sender", "component", "notification", "channel", msg.Channel, "to", msg.To,
		"external_reference", msg.ExternalReference, "amount", msg.Amount, "access", msg.Access)
	return nil
}
