package models

import (
	"strings"
	"time"
)

// Message is the simplified application-level message record emitted to
// listeners. Raw protocol structures never cross this boundary.
type Message struct {
	ID         string    `json:"id"`
	ChatJID    string    `json:"chat_jid"`
	SenderJID  string    `json:"sender_jid"`
	SenderName string    `json:"sender_name,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	Text       string    `json:"text,omitempty"`
	IsGroup    bool      `json:"is_group"`
}

// HasPrefix reports whether the message text starts with the given command prefix.
func (m *Message) HasPrefix(prefix string) bool {
	return prefix != "" && strings.HasPrefix(m.Text, prefix)
}
