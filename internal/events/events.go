package events

import (
	"context"
	"sync"
	"time"

	"wagate/internal/models"

	"github.com/google/uuid"
)

// Type identifies a normalized event variant.
type Type string

const (
	TypeNewMessage         Type = "new_message"
	TypeNewCall            Type = "new_call"
	TypeParticipantsUpdate Type = "participants_update"
	TypeNewGroupJoined     Type = "new_group_joined"
)

// ParticipantAction classifies a membership change.
type ParticipantAction string

const (
	ParticipantActionAdd     ParticipantAction = "add"
	ParticipantActionRemove  ParticipantAction = "remove"
	ParticipantActionDemote  ParticipantAction = "demote"
	ParticipantActionPromote ParticipantAction = "promote"
)

// NewMessage carries a simplified inbound message.
type NewMessage struct {
	ID      string         `json:"id"`
	Message models.Message `json:"message"`
}

// NewCall carries the caller identifier of an inbound call.
type NewCall struct {
	ID   string `json:"id"`
	From string `json:"from"`
}

// ParticipantsUpdate carries a group membership change.
type ParticipantsUpdate struct {
	ID           string            `json:"id"`
	JID          string            `json:"jid"`
	Participants []string          `json:"participants"`
	Action       ParticipantAction `json:"action"`
}

// NewGroupJoined carries a freshly created or joined group.
type NewGroupJoined struct {
	ID      string `json:"id"`
	JID     string `json:"jid"`
	Subject string `json:"subject"`
}

// Envelope wraps any normalized event for stream subscribers.
type Envelope struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Dispatcher is the typed callback registry connecting the session manager to
// application listeners. Typed handlers run synchronously in registration
// order on the emitting goroutine; stream subscribers receive envelopes on
// buffered channels and are skipped (never blocked on) when their buffer is
// full.
type Dispatcher struct {
	mu                  sync.RWMutex
	messageHandlers     []func(context.Context, NewMessage)
	callHandlers        []func(context.Context, NewCall)
	participantHandlers []func(context.Context, ParticipantsUpdate)
	groupHandlers       []func(context.Context, NewGroupJoined)
	subscribers         map[uint64]chan Envelope
	nextSubscriber      uint64
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[uint64]chan Envelope),
	}
}

func (d *Dispatcher) OnNewMessage(fn func(context.Context, NewMessage)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messageHandlers = append(d.messageHandlers, fn)
}

func (d *Dispatcher) OnNewCall(fn func(context.Context, NewCall)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callHandlers = append(d.callHandlers, fn)
}

func (d *Dispatcher) OnParticipantsUpdate(fn func(context.Context, ParticipantsUpdate)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.participantHandlers = append(d.participantHandlers, fn)
}

func (d *Dispatcher) OnNewGroupJoined(fn func(context.Context, NewGroupJoined)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groupHandlers = append(d.groupHandlers, fn)
}

// Subscribe returns a channel receiving an envelope per emitted event and a
// cancel function that must be called to release the subscription.
func (d *Dispatcher) Subscribe(buffer int) (<-chan Envelope, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Envelope, buffer)

	d.mu.Lock()
	id := d.nextSubscriber
	d.nextSubscriber++
	d.subscribers[id] = ch
	d.mu.Unlock()

	cancel := func() {
		d.mu.Lock()
		if sub, ok := d.subscribers[id]; ok {
			delete(d.subscribers, id)
			close(sub)
		}
		d.mu.Unlock()
	}
	return ch, cancel
}

// EmitNewMessage delivers a new_message event. The event ID is assigned here.
func (d *Dispatcher) EmitNewMessage(ctx context.Context, ev NewMessage) {
	ev.ID = uuid.NewString()
	d.mu.RLock()
	handlers := append([]func(context.Context, NewMessage){}, d.messageHandlers...)
	d.mu.RUnlock()
	for _, fn := range handlers {
		fn(ctx, ev)
	}
	d.broadcast(Envelope{ID: ev.ID, Type: TypeNewMessage, Timestamp: time.Now().UTC(), Payload: ev})
}

// EmitNewCall delivers a new_call event.
func (d *Dispatcher) EmitNewCall(ctx context.Context, ev NewCall) {
	ev.ID = uuid.NewString()
	d.mu.RLock()
	handlers := append([]func(context.Context, NewCall){}, d.callHandlers...)
	d.mu.RUnlock()
	for _, fn := range handlers {
		fn(ctx, ev)
	}
	d.broadcast(Envelope{ID: ev.ID, Type: TypeNewCall, Timestamp: time.Now().UTC(), Payload: ev})
}

// EmitParticipantsUpdate delivers a participants_update event.
func (d *Dispatcher) EmitParticipantsUpdate(ctx context.Context, ev ParticipantsUpdate) {
	ev.ID = uuid.NewString()
	d.mu.RLock()
	handlers := append([]func(context.Context, ParticipantsUpdate){}, d.participantHandlers...)
	d.mu.RUnlock()
	for _, fn := range handlers {
		fn(ctx, ev)
	}
	d.broadcast(Envelope{ID: ev.ID, Type: TypeParticipantsUpdate, Timestamp: time.Now().UTC(), Payload: ev})
}

// EmitNewGroupJoined delivers a new_group_joined event.
func (d *Dispatcher) EmitNewGroupJoined(ctx context.Context, ev NewGroupJoined) {
	ev.ID = uuid.NewString()
	d.mu.RLock()
	handlers := append([]func(context.Context, NewGroupJoined){}, d.groupHandlers...)
	d.mu.RUnlock()
	for _, fn := range handlers {
		fn(ctx, ev)
	}
	d.broadcast(Envelope{ID: ev.ID, Type: TypeNewGroupJoined, Timestamp: time.Now().UTC(), Payload: ev})
}

func (d *Dispatcher) broadcast(env Envelope) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, ch := range d.subscribers {
		select {
		case ch <- env:
		default:
			// Slow subscriber; relay must not stall.
		}
	}
}
