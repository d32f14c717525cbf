package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wagate/internal/constants"
	"wagate/internal/events"
	"wagate/internal/metrics"
	"wagate/internal/models"
	"wagate/internal/privacy"
	"wagate/internal/tracing"
	"wagate/pkg/engine/types"

	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
)

// Condition is the session's connection lifecycle state.
type Condition string

const (
	ConditionConnecting Condition = "connecting"
	ConditionConnected  Condition = "connected"
	ConditionLoggedOut  Condition = "logged_out"
)

// AuthStore persists and clears the session's credential material.
type AuthStore interface {
	SaveCredential(ctx context.Context, sessionName, credName string, data []byte) error
	ClearCredentials(ctx context.Context, sessionName string) error
}

// ContactSink receives contact updates for persistence.
type ContactSink interface {
	SaveEngineContacts(ctx context.Context, contacts []types.Contact) error
}

// ClientFactory constructs a fresh protocol client for each (re)start.
type ClientFactory func() (types.Client, error)

// SessionManager owns one protocol-client instance at a time, relays its
// events into the normalized vocabulary, and drives the reconnect and
// re-auth policy. At most one client is live per manager; starting a new one
// supersedes the previous instance and its events stop being relayed.
type SessionManager struct {
	sessionName string
	factory     ClientFactory
	authStore   AuthStore
	contacts    ContactSink
	dispatcher  *events.Dispatcher
	logger      *logrus.Logger

	// reconnectDelay is the fixed restart delay; retries are unbounded.
	reconnectDelay time.Duration

	mu             sync.Mutex
	condition      Condition
	qrImage        []byte
	client         types.Client
	generation     uint64
	reconnectTimer *time.Timer
	baseCtx        context.Context
}

// NewSessionManager creates a session manager. The dispatcher must be
// non-nil; listeners register on it before or after Start.
func NewSessionManager(sessionName string, factory ClientFactory, authStore AuthStore, contacts ContactSink, dispatcher *events.Dispatcher, logger *logrus.Logger) *SessionManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &SessionManager{
		sessionName:    sessionName,
		factory:        factory,
		authStore:      authStore,
		contacts:       contacts,
		dispatcher:     dispatcher,
		logger:         logger,
		reconnectDelay: time.Duration(constants.DefaultReconnectDelaySec) * time.Second,
		condition:      ConditionConnecting,
	}
}

// SetReconnectDelay overrides the fixed restart delay. Intended for tests.
func (m *SessionManager) SetReconnectDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectDelay = d
}

// Start idempotently establishes a connection. A previously live client is
// superseded: it is closed, any pending reconnect timer is cancelled, and
// events from the old instance are no longer relayed. Connection
// establishment continues asynchronously via engine events; a failed dial is
// handled by the same unbounded retry policy as a transport close.
func (m *SessionManager) Start(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "session.start")
	defer span.End()

	client, err := m.factory()
	if err != nil {
		return fmt.Errorf("failed to construct protocol client: %w", err)
	}

	m.mu.Lock()
	m.stopReconnectLocked()
	if m.client != nil {
		_ = m.client.Close()
	}
	m.generation++
	gen := m.generation
	m.client = client
	m.condition = ConditionConnecting
	m.qrImage = nil
	m.baseCtx = ctx
	m.mu.Unlock()

	client.OnCredentialsUpdated(func(ctx context.Context, update types.CredentialsUpdate) {
		m.handleCredentials(ctx, gen, update)
	})
	client.OnConnectionUpdate(func(ctx context.Context, update types.ConnectionUpdate) {
		m.handleConnectionUpdate(ctx, gen, update)
	})
	client.OnMessages(func(ctx context.Context, batch types.MessageBatch) {
		m.handleMessages(ctx, gen, batch)
	})
	client.OnContactsUpdated(func(ctx context.Context, update types.ContactsUpdate) {
		m.handleContacts(ctx, gen, update)
	})
	client.OnCall(func(ctx context.Context, payload types.CallPayload) {
		m.handleCall(ctx, gen, payload)
	})

	m.logger.WithField("session", privacy.MaskSessionName(m.sessionName)).Info("Starting session")

	if err := client.Connect(ctx); err != nil {
		tracing.RecordError(ctx, err)
		m.logger.WithError(err).Warn("Engine dial failed, scheduling retry")
		m.mu.Lock()
		if gen == m.generation {
			m.scheduleReconnectLocked()
		}
		m.mu.Unlock()
	}

	return nil
}

// Stop closes the live client and cancels any pending reconnect.
func (m *SessionManager) Stop() {
	m.mu.Lock()
	m.stopReconnectLocked()
	client := m.client
	m.client = nil
	m.generation++
	m.mu.Unlock()

	if client != nil {
		if err := client.Close(); err != nil {
			m.logger.WithError(err).Warn("Failed to close protocol client")
		}
	}
	m.logger.Info("Session stopped")
}

// Condition returns the current connection state.
func (m *SessionManager) Condition() Condition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.condition
}

// QRImage returns the most recent pairing QR PNG, or nil when no pairing is
// pending. The slice is a copy.
func (m *SessionManager) QRImage() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.qrImage == nil {
		return nil
	}
	return append([]byte(nil), m.qrImage...)
}

// SessionName returns the configured session identifier.
func (m *SessionManager) SessionName() string {
	return m.sessionName
}

func (m *SessionManager) handleConnectionUpdate(ctx context.Context, gen uint64, update types.ConnectionUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return
	}

	if update.PairingCode != "" {
		png, err := qrcode.Encode(update.PairingCode, qrcode.Medium, constants.DefaultQRImageSizePx)
		if err != nil {
			m.logger.WithError(err).Error("Failed to render pairing QR code")
		} else {
			m.qrImage = png
			m.condition = ConditionConnecting
			metrics.IncrementCounter("session_pairing_codes", nil, "Pairing codes received")
			m.logger.Info("Pairing code received, QR image available at /session/qr")
		}
		return
	}

	switch update.Connection {
	case types.ConnectionStateOpen:
		m.condition = ConditionConnected
		m.qrImage = nil
		metrics.SetGauge("session_connected", 1, nil, "Session connection state")
		m.logger.WithField("session", privacy.MaskSessionName(m.sessionName)).Info("Session connected")

	case types.ConnectionStateClose:
		metrics.SetGauge("session_connected", 0, nil, "Session connection state")
		if update.LastDisconnectReason == types.DisconnectReasonLoggedOut {
			m.condition = ConditionLoggedOut
			m.logger.Warn("Session logged out, clearing stored credentials")
			// Credentials must be gone before the scheduled restart fires so
			// the new session starts unauthenticated and issues a fresh QR.
			if err := m.authStore.ClearCredentials(ctx, m.sessionName); err != nil {
				m.logger.WithError(err).Error("Failed to clear auth state")
			}
			m.scheduleReconnectLocked()
		} else {
			m.condition = ConditionConnecting
			m.logger.WithField("reason", string(update.LastDisconnectReason)).Info("Transport closed, scheduling reconnect")
			m.scheduleReconnectLocked()
		}

	case types.ConnectionStateConnecting:
		m.condition = ConditionConnecting
		m.logger.Info("Session connecting")
	}
}

// scheduleReconnectLocked arms the single reconnect timer. An already-pending
// timer is reset rather than stacked, so overlapping disconnects collapse
// into one restart attempt.
func (m *SessionManager) scheduleReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}

	ctx := m.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}

	metrics.IncrementCounter("session_reconnects_scheduled", nil, "Reconnect attempts scheduled")
	m.reconnectTimer = time.AfterFunc(m.reconnectDelay, func() {
		if ctx.Err() != nil {
			return
		}
		m.logger.Info("Restarting session")
		if err := m.Start(ctx); err != nil {
			m.logger.WithError(err).Error("Session restart failed")
			m.mu.Lock()
			m.scheduleReconnectLocked()
			m.mu.Unlock()
		}
	})
}

func (m *SessionManager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *SessionManager) currentGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// handleMessages relays one inbound batch. Only the first message of each
// batch is inspected; batches are size 1 in practice and trailing messages
// are counted but not relayed.
func (m *SessionManager) handleMessages(ctx context.Context, gen uint64, batch types.MessageBatch) {
	if gen != m.currentGeneration() || len(batch.Messages) == 0 {
		return
	}

	if skipped := len(batch.Messages) - 1; skipped > 0 {
		metrics.AddToCounter("relay_batch_messages_skipped", float64(skipped), nil, "Trailing batch messages not relayed")
		m.logger.WithField("skipped", skipped).Debug("Ignoring trailing messages in batch")
	}

	msg := batch.Messages[0]

	switch {
	case msg.Type == types.MessageTypeProtocol:
		metrics.IncrementCounter("relay_protocol_messages_dropped", nil, "Transport-internal messages discarded")

	case msg.StubType != "":
		m.relayStub(ctx, msg)

	default:
		metrics.IncrementCounter("relay_messages_emitted", nil, "new_message events emitted")
		m.dispatcher.EmitNewMessage(ctx, events.NewMessage{Message: simplifyMessage(msg)})
	}
}

// relayStub maps a system stub message to exactly one normalized event.
// Unmapped stub subtypes are dropped without an event or an error.
func (m *SessionManager) relayStub(ctx context.Context, msg types.Message) {
	switch msg.StubType {
	case types.StubGroupCreate:
		subject := ""
		if len(msg.StubParameters) > 0 {
			subject = msg.StubParameters[0]
		}
		m.dispatcher.EmitNewGroupJoined(ctx, events.NewGroupJoined{
			JID:     msg.ChatJID,
			Subject: subject,
		})

	case types.StubGroupParticipantAdd, types.StubGroupParticipantAddRequest, types.StubGroupParticipantInvite:
		m.emitParticipants(ctx, msg, events.ParticipantActionAdd)

	case types.StubGroupParticipantLeave, types.StubGroupParticipantRemove:
		m.emitParticipants(ctx, msg, events.ParticipantActionRemove)

	case types.StubGroupParticipantDemote:
		m.emitParticipants(ctx, msg, events.ParticipantActionDemote)

	case types.StubGroupParticipantPromote:
		m.emitParticipants(ctx, msg, events.ParticipantActionPromote)

	default:
		metrics.IncrementCounter("relay_stubs_dropped", map[string]string{"stub": string(msg.StubType)}, "Unmapped stub subtypes dropped")
		m.logger.WithField("stub", string(msg.StubType)).Debug("Dropping unmapped stub subtype")
	}
}

func (m *SessionManager) emitParticipants(ctx context.Context, msg types.Message, action events.ParticipantAction) {
	m.dispatcher.EmitParticipantsUpdate(ctx, events.ParticipantsUpdate{
		JID:          msg.ChatJID,
		Participants: msg.StubParameters,
		Action:       action,
	})
}

// handleContacts forwards contact updates verbatim for persistence.
func (m *SessionManager) handleContacts(ctx context.Context, gen uint64, update types.ContactsUpdate) {
	if gen != m.currentGeneration() || len(update.Contacts) == 0 {
		return
	}
	if err := m.contacts.SaveEngineContacts(ctx, update.Contacts); err != nil {
		m.logger.WithError(err).Error("Failed to persist contact updates")
	}
}

// handleCall extracts the caller from the first content attribute set. A
// payload without it is logged and dropped; one junk notification must not
// take down the daemon.
func (m *SessionManager) handleCall(ctx context.Context, gen uint64, payload types.CallPayload) {
	if gen != m.currentGeneration() {
		return
	}

	if len(payload.Content) == 0 {
		metrics.IncrementCounter("relay_calls_malformed", nil, "Call payloads without content")
		m.logger.Warn("Dropping call notification without content")
		return
	}

	from := payload.Content[0].Attrs[types.CallAttrCreator]
	if from == "" {
		metrics.IncrementCounter("relay_calls_malformed", nil, "Call payloads without content")
		m.logger.Warn("Dropping call notification without caller attribute")
		return
	}

	m.logger.WithField("from", privacy.MaskJID(from)).Info("Incoming call")
	m.dispatcher.EmitNewCall(ctx, events.NewCall{From: from})
}

func (m *SessionManager) handleCredentials(ctx context.Context, gen uint64, update types.CredentialsUpdate) {
	if gen != m.currentGeneration() {
		return
	}
	if err := m.authStore.SaveCredential(ctx, m.sessionName, update.Name, update.Data); err != nil {
		m.logger.WithError(err).WithField("credential", update.Name).Error("Failed to persist credential update")
	}
}

func simplifyMessage(msg types.Message) models.Message {
	return models.Message{
		ID:         msg.ID,
		ChatJID:    msg.ChatJID,
		SenderJID:  msg.SenderJID,
		SenderName: msg.PushName,
		Timestamp:  msg.Timestamp,
		Type:       msg.Type,
		Text:       msg.Text,
		IsGroup:    isGroupJID(msg.ChatJID),
	}
}

func isGroupJID(jid string) bool {
	return len(jid) > 5 && jid[len(jid)-5:] == "@g.us"
}
