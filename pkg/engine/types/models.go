package types

import (
	"encoding/json"
	"time"
)

// ConnectionState mirrors the engine's connection lifecycle notices.
type ConnectionState string

const (
	ConnectionStateConnecting ConnectionState = "connecting"
	ConnectionStateOpen       ConnectionState = "open"
	ConnectionStateClose      ConnectionState = "close"
)

// DisconnectReason classifies why the transport closed.
type DisconnectReason string

const (
	DisconnectReasonLoggedOut      DisconnectReason = "logged_out"
	DisconnectReasonConnectionLost DisconnectReason = "connection_lost"
	DisconnectReasonRestartNeeded  DisconnectReason = "restart_required"
	DisconnectReasonTimedOut       DisconnectReason = "timed_out"
)

// StubType identifies system-generated messages representing group or
// membership changes rather than user content.
type StubType string

const (
	StubGroupCreate                StubType = "GROUP_CREATE"
	StubGroupParticipantAdd        StubType = "GROUP_PARTICIPANT_ADD"
	StubGroupParticipantAddRequest StubType = "GROUP_PARTICIPANT_ADD_REQUEST_JOIN"
	StubGroupParticipantInvite     StubType = "GROUP_PARTICIPANT_INVITE"
	StubGroupParticipantLeave      StubType = "GROUP_PARTICIPANT_LEAVE"
	StubGroupParticipantRemove     StubType = "GROUP_PARTICIPANT_REMOVE"
	StubGroupParticipantDemote     StubType = "GROUP_PARTICIPANT_DEMOTE"
	StubGroupParticipantPromote    StubType = "GROUP_PARTICIPANT_PROMOTE"
)

// MessageTypeProtocol marks transport-internal control messages
// (key distribution and the like). These never reach application listeners.
const MessageTypeProtocol = "protocol"

// ConnectionUpdate is the engine's connection-state-changed notification.
type ConnectionUpdate struct {
	Connection           ConnectionState  `json:"connection"`
	LastDisconnectReason DisconnectReason `json:"lastDisconnectReason,omitempty"`
	PairingCode          string           `json:"pairingCode,omitempty"`
}

// Message is a raw inbound message as delivered by the engine.
type Message struct {
	ID             string    `json:"id"`
	ChatJID        string    `json:"chatJid"`
	SenderJID      string    `json:"senderJid"`
	PushName       string    `json:"pushName,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Type           string    `json:"type"`
	Text           string    `json:"text,omitempty"`
	StubType       StubType  `json:"stubType,omitempty"`
	StubParameters []string  `json:"stubParameters,omitempty"`
}

// MessageBatch is the engine's messages-received payload. Batches are almost
// always size 1 in practice.
type MessageBatch struct {
	Messages []Message `json:"messages"`
}

// Contact is a raw contact update from the engine.
type Contact struct {
	JID         string `json:"jid"`
	Name        string `json:"name,omitempty"`
	PushName    string `json:"pushName,omitempty"`
	ShortName   string `json:"shortName,omitempty"`
	IsBlocked   bool   `json:"isBlocked,omitempty"`
	IsGroup     bool   `json:"isGroup,omitempty"`
	IsMyContact bool   `json:"isMyContact,omitempty"`
}

// ContactsUpdate is the engine's contacts-updated payload.
type ContactsUpdate struct {
	Contacts []Contact `json:"contacts"`
}

// CallContent is one content node of a raw call notification.
type CallContent struct {
	Tag   string            `json:"tag"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// CallAttrCreator is the content attribute carrying the caller JID.
const CallAttrCreator = "call-creator"

// CallPayload is the engine's call-received payload.
type CallPayload struct {
	Content []CallContent `json:"content"`
}

// CredentialsUpdate carries a single credential blob to persist. The engine
// emits one update per changed credential file.
type CredentialsUpdate struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// EventFrame is the wire envelope for every event pushed by the engine.
type EventFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Wire event names used in EventFrame.Event.
const (
	EventCredentialsUpdated = "credentials.updated"
	EventConnectionUpdate   = "connection.update"
	EventMessagesReceived   = "messages.received"
	EventContactsUpdated    = "contacts.updated"
	EventCallReceived       = "call.received"
)
