package messaging

import (
	"context"
	"log"
	"sync"
)

// Message は送信済みメッセージの記録です
type Message struct {
	To   string
	Body string
}

// LogSender は送信内容をログに出して保持します。ENV=LOCALとテストで使います
type LogSender struct {
	mu   sync.Mutex
	sent []Message
	// Fail が設定されている場合、Sendはこのエラーを返します
	Fail error
}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (s *LogSender) Send(_ context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return s.Fail
	}
	log.Printf("[whatsapp] to=%s body=%q", to, body)
	s.sent = append(s.sent, Message{To: to, Body: body})
	return nil
}

// Sent は送信済みメッセージのコピーを返します
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

// SentTo は指定番号宛のメッセージ本文を返します
func (s *LogSender) SentTo(to string) []string {
	var bodies []string
	for _, m := range s.Sent() {
		if m.To == to {
			bodies = append(bodies, m.Body)
		}
	}
	return bodies
}
