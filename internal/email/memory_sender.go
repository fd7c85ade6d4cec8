package email

import (
	"context"
	"sync"
)

// Message is an email as it was handed to a Sender.
type Message struct {
	From      Address
	Recipient Address
	Subject   string
	Body      string
}

// MemorySender keeps sent emails in memory. It's meant for tests.
type MemorySender struct {
	mu     sync.Mutex
	emails []Message
	err    error
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) Send(_ context.Context, from, recipient Address, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.emails = append(s.emails, Message{
		From:      from,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	})
	return nil
}

// Emails returns a copy of the emails sent so far.
func (s *MemorySender) Emails() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Message(nil), s.emails...)
}

// SetErr makes every following Send fail with err, a nil err
// makes Send succeed again.
func (s *MemorySender) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = err
}
