// Package audit keeps an append-only JSONL trail of every domain event.
package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/broker"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

type Entry struct {
	ID        string          `json:"id"`
	At        time.Time       `json:"at"`
	Event     string          `json:"event"`
	Reference string          `json:"reference,omitempty"`
	Fields    json.RawMessage `json:"fields,omitempty"`
}

type keyed interface {
	PartitionKey() string
}

type Service struct {
	logger *observability.Logger
	now    func() time.Time
	fileMu sync.Mutex
	f      *os.File
}

func NewService(logger *observability.Logger) *Service {
	return &Service{logger: logger, now: time.Now}
}

func NewServiceWithFile(logger *observability.Logger, path string) (*Service, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Error("audit error", "layer", "service", "component", "audit", "method", "NewServiceWithFile", "path", path, "err", err)
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Error("audit error", "layer", "service", "component", "audit", "method", "NewServiceWithFile", "path", path, "err", err)
		return nil, err
	}
	return &Service{logger: logger, now: time.Now, f: f}, nil
}

func (s *Service) Close() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	if err != nil {
		s.logger.Error("audit error", "layer", "service", "component", "audit", "method", "Close", "err", err)
	}
	s.f = nil
	return err
}

// Record writes one entry for evt and returns it.
func (s *Service) Record(ctx context.Context, evt broker.Event) (Entry, error) {
	fields, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("audit error", "layer", "service", "component", "audit", "method", "Record", "event", evt.Name(), "err", err)
		return Entry{}, err
	}
	e := Entry{
		ID:     uuid.NewString(),
		At:     s.now().UTC(),
		Event:  evt.Name(),
		Fields: fields,
	}
	if k, ok := evt.(keyed); ok {
		e.Reference = k.PartitionKey()
	}
	s.logger.Info("audit", "layer", "service", "component", "audit", "id", e.ID, "event", e.Event, "reference", e.Reference)

	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.f == nil {
		return e, nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return e, err
	}
	if _, err := s.f.Write(append(b, '\n')); err != nil {
		s.logger.Error("audit error", "layer", "service", "component", "audit", "method", "Record", "event", e.Event, "err", err)
		return e, err
	}
	return e, nil
}
