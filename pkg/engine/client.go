package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"wagate/internal/constants"
	"wagate/pkg/engine/types"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// Client is the websocket implementation of the protocol-client contract.
// It dials the engine daemon, decodes event frames, and fans each one out to
// the registered handlers. All handlers run on the single read-loop goroutine,
// so they execute one at a time in arrival order.
type Client struct {
	cfg    types.ClientConfig
	logger *logrus.Logger

	mu                  sync.RWMutex
	conn                *websocket.Conn
	cancel              context.CancelFunc
	closed              bool
	credentialsHandlers []func(context.Context, types.CredentialsUpdate)
	connectionHandlers  []func(context.Context, types.ConnectionUpdate)
	messageHandlers     []func(context.Context, types.MessageBatch)
	contactHandlers     []func(context.Context, types.ContactsUpdate)
	callHandlers        []func(context.Context, types.CallPayload)
}

// NewClient creates a protocol client for the given engine endpoint.
func NewClient(cfg types.ClientConfig, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
	}
}

// Connect dials the engine and starts the read loop. Connection progress of
// the underlying WhatsApp session arrives asynchronously as
// connection.update frames.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("X-Session-Name", c.cfg.SessionName)

	dialCtx, cancelDial := context.WithTimeout(ctx, time.Duration(constants.DefaultEngineDialTimeoutSec)*time.Second)
	defer cancelDial()

	conn, resp, err := websocket.Dial(dialCtx, c.cfg.EngineURL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to dial engine (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to dial engine: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.closed = false
	c.mu.Unlock()

	go c.readLoop(loopCtx, conn)
	return nil
}

// Close stops event delivery and tears down the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	return nil
}

func (c *Client) OnCredentialsUpdated(fn func(context.Context, types.CredentialsUpdate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credentialsHandlers = append(c.credentialsHandlers, fn)
}

func (c *Client) OnConnectionUpdate(fn func(context.Context, types.ConnectionUpdate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectionHandlers = append(c.connectionHandlers, fn)
}

func (c *Client) OnMessages(fn func(context.Context, types.MessageBatch)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageHandlers = append(c.messageHandlers, fn)
}

func (c *Client) OnContactsUpdated(fn func(context.Context, types.ContactsUpdate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contactHandlers = append(c.contactHandlers, fn)
}

func (c *Client) OnCall(fn func(context.Context, types.CallPayload)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callHandlers = append(c.callHandlers, fn)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.mu.RLock()
			closed := c.closed
			c.mu.RUnlock()

			if closed || ctx.Err() != nil {
				return
			}

			// The transport to the engine dropped out from under us. Surface
			// it as a close notice so the session manager's reconnect policy
			// takes over.
			c.logger.WithError(err).Warn("Engine transport read failed")
			c.dispatch(ctx, types.EventFrame{
				Event: types.EventConnectionUpdate,
				Payload: mustMarshal(types.ConnectionUpdate{
					Connection:           types.ConnectionStateClose,
					LastDisconnectReason: types.DisconnectReasonConnectionLost,
				}),
			})
			return
		}

		var frame types.EventFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.WithError(err).Warn("Dropping malformed engine frame")
			continue
		}

		c.dispatch(ctx, frame)
	}
}

func (c *Client) dispatch(ctx context.Context, frame types.EventFrame) {
	switch frame.Event {
	case types.EventCredentialsUpdated:
		var update types.CredentialsUpdate
		if !c.decode(frame, &update) {
			return
		}
		for _, fn := range c.snapshotCredentialsHandlers() {
			fn(ctx, update)
		}
	case types.EventConnectionUpdate:
		var update types.ConnectionUpdate
		if !c.decode(frame, &update) {
			return
		}
		for _, fn := range c.snapshotConnectionHandlers() {
			fn(ctx, update)
		}
	case types.EventMessagesReceived:
		var batch types.MessageBatch
		if !c.decode(frame, &batch) {
			return
		}
		for _, fn := range c.snapshotMessageHandlers() {
			fn(ctx, batch)
		}
	case types.EventContactsUpdated:
		var update types.ContactsUpdate
		if !c.decode(frame, &update) {
			return
		}
		for _, fn := range c.snapshotContactHandlers() {
			fn(ctx, update)
		}
	case types.EventCallReceived:
		var payload types.CallPayload
		if !c.decode(frame, &payload) {
			return
		}
		for _, fn := range c.snapshotCallHandlers() {
			fn(ctx, payload)
		}
	default:
		c.logger.WithField("event", frame.Event).Debug("Ignoring unknown engine event")
	}
}

func (c *Client) decode(frame types.EventFrame, v interface{}) bool {
	if err := json.Unmarshal(frame.Payload, v); err != nil {
		c.logger.WithError(err).WithField("event", frame.Event).Warn("Dropping undecodable engine payload")
		return false
	}
	return true
}

func (c *Client) snapshotCredentialsHandlers() []func(context.Context, types.CredentialsUpdate) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(context.Context, types.CredentialsUpdate){}, c.credentialsHandlers...)
}

func (c *Client) snapshotConnectionHandlers() []func(context.Context, types.ConnectionUpdate) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(context.Context, types.ConnectionUpdate){}, c.connectionHandlers...)
}

func (c *Client) snapshotMessageHandlers() []func(context.Context, types.MessageBatch) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(context.Context, types.MessageBatch){}, c.messageHandlers...)
}

func (c *Client) snapshotContactHandlers() []func(context.Context, types.ContactsUpdate) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(context.Context, types.ContactsUpdate){}, c.contactHandlers...)
}

func (c *Client) snapshotCallHandlers() []func(context.Context, types.CallPayload) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(context.Context, types.CallPayload){}, c.callHandlers...)
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Only reachable with unmarshalable types, which the synthetic
		// connection update is not.
		panic(err)
	}
	return data
}
