package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// StdoutSink пишет записи как JSON-строки в переданный writer.
// Дефолтный sink: ничего не требует, падает только на ошибке сериализации.
type StdoutSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewStdoutSink(w io.Writer) *StdoutSink {
	return &StdoutSink{enc: json.NewEncoder(w)}
}

func (s *StdoutSink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Encoder сам добавляет перевод строки — одна запись, одна строка
	return s.enc.Encode(rec)
}

func (s *StdoutSink) Close() error { return nil }
