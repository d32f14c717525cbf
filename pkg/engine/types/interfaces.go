package types

import "context"

// Client is the protocol-client event contract the session manager consumes.
// Implementations own the transport to the WhatsApp engine; wagate never
// parses wire frames itself. Handlers registered through the On* methods run
// one at a time in arrival order for a given client instance.
type Client interface {
	// Connect establishes the transport and starts delivering events.
	// Establishment continues asynchronously; connection progress is reported
	// through OnConnectionUpdate handlers, not through this call's completion.
	Connect(ctx context.Context) error

	// Close tears the transport down. No events are delivered afterwards.
	Close() error

	OnCredentialsUpdated(func(ctx context.Context, update CredentialsUpdate))
	OnConnectionUpdate(func(ctx context.Context, update ConnectionUpdate))
	OnMessages(func(ctx context.Context, batch MessageBatch))
	OnContactsUpdated(func(ctx context.Context, update ContactsUpdate))
	OnCall(func(ctx context.Context, payload CallPayload))
}

// ClientConfig configures a protocol client instance.
type ClientConfig struct {
	// EngineURL is the websocket endpoint of the engine daemon
	// (ws:// or wss://).
	EngineURL string

	// SessionName selects the engine-side session to attach to.
	SessionName string
}
