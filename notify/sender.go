package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogSender is the stub transport used when no SMS gateway is configured.
// It logs the message and reports success.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(_ context.Context, to, body string) (string, error) {
	id := "stub-" + uuid.NewString()
	s.Log.Info().Str("to", to).Str("provider_id", id).Str("body", body).Msg("sms stub")
	return id, nil
}

// Sent is one message captured by RecordingSender.
type Sent struct {
	To   string
	Body string
}

// RecordingSender keeps every message in memory. Err, when set, fails every
// send.
type RecordingSender struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

func (s *RecordingSender) Send(_ context.Context, to, body string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	s.sent = append(s.sent, Sent{To: to, Body: body})
	return uuid.NewString(), nil
}

// Sent returns a copy of the captured messages.
func (s *RecordingSender) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Sent, len(s.sent))
	copy(out, s.sent)
	return out
}
