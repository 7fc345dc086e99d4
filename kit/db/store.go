package db

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/broker"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

// Entry is one event appended to a stream.
type Entry struct {
	Sequence   int64           `json:"sequence"`
	StreamID   string          `json:"stream_id"`
	EventName  string          `json:"event_name"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Store is an append-only event history grouped by stream id. With a file it
// survives restarts as JSON lines; without one it lives in memory.
type Store struct {
	logger *observability.Logger
	now    func() time.Time

	mu      sync.RWMutex
	seq     int64
	streams map[string][]Entry

	fileMu sync.Mutex
	f      *os.File
	enc    *json.Encoder
}

func New(logger *observability.Logger) *Store {
	return &Store{logger: logger, now: time.Now, streams: make(map[string][]Entry)}
}

func NewWithFile(path string, logger *observability.Logger) (*Store, error) {
	s := New(logger)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Error("create history dir", "layer", "store", "component", "db", "method", "NewWithFile", "path", path, "err", err)
		return nil, errors.Join(ErrInternal, err)
	}
	if err := s.replay(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		logger.Error("open history file", "layer", "store", "component", "db", "method", "NewWithFile", "path", path, "err", err)
		return nil, errors.Join(ErrInternal, err)
	}
	s.f = f
	s.enc = json.NewEncoder(f)
	return s, nil
}

func (s *Store) replay(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Join(ErrInternal, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil {
			s.logger.Warn("skip malformed history line", "layer", "store", "component", "db", "method", "replay", "path", path, "line", line, "err", err)
			continue
		}
		s.streams[e.StreamID] = append(s.streams[e.StreamID], e)
		if e.Sequence > s.seq {
			s.seq = e.Sequence
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Join(ErrInternal, err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, streamID string, evt broker.Event) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Entry{}, errors.Join(ErrInvalid, err)
	}

	s.mu.Lock()
	s.seq++
	e := Entry{
		Sequence:   s.seq,
		StreamID:   streamID,
		EventName:  evt.Name(),
		Payload:    payload,
		OccurredAt: s.now().UTC(),
	}
	s.streams[streamID] = append(s.streams[streamID], e)
	s.mu.Unlock()

	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.enc != nil {
		if err := s.enc.Encode(e); err != nil {
			s.logger.Error("append history", "layer", "store", "component", "db", "method", "Append", "stream_id", streamID, "event", e.EventName, "err", err)
			return e, errors.Join(ErrInternal, err)
		}
	}
	return e, nil
}

func (s *Store) Load(ctx context.Context, streamID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.streams[streamID]...)
}

func (s *Store) Close() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	s.enc = nil
	return err
}
