package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/planboard/internal/event"
	"github.com/example/planboard/internal/observability"
	"github.com/example/planboard/internal/queue"
	"github.com/example/planboard/internal/storage"
	"github.com/example/planboard/internal/types"
)

// State is the connection state of the channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Outcome reports how Send disposed of an event.
type Outcome int

const (
	// OutcomeSent means the event was transmitted on the live connection.
	OutcomeSent Outcome = iota
	// OutcomeQueued means the event was parked in the persistent queue.
	OutcomeQueued
)

const (
	defaultReconnectDelay = 3 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultDialTimeout    = 5 * time.Second
)

// Channel manages the single duplex connection to the remote authority.
// While disconnected it parks outbound events in the persistent queue; on
// every successful open it flushes that queue oldest-first and then
// re-authenticates silently when a previously issued token exists.
//
// An unexpected close schedules one reconnect attempt after a fixed delay,
// indefinitely and without backoff growth; this is a deliberate choice for a
// single-user client tool. Disconnect cancels the pending attempt and stops
// the loop until Connect is called again.
type Channel struct {
	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	url     string
	manual  bool
	gen     int
	timer   *time.Timer
	dialer  websocket.Dialer
	actor   types.ActorID
	delay   time.Duration
	writeTO time.Duration

	outbox   *queue.Persistent
	codec    *event.Codec
	settings *storage.Settings
	logger   zerolog.Logger
	stateCh  chan State

	onEvent     func(event.ServerEvent)
	onState     func(State)
	onAuthError func(string)
	onAuth      func(event.User)
}

// Option configures the channel.
type Option func(*Channel)

// WithReconnectDelay overrides the fixed delay between reconnect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Channel) { c.delay = d }
}

// WithWriteTimeout overrides the per-message write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Channel) { c.writeTO = d }
}

// NewChannel constructs a disconnected channel.
func NewChannel(outbox *queue.Persistent, codec *event.Codec, settings *storage.Settings, logger zerolog.Logger, opts ...Option) *Channel {
	c := &Channel{
		state:    StateDisconnected,
		dialer:   websocket.Dialer{HandshakeTimeout: defaultDialTimeout},
		delay:    defaultReconnectDelay,
		writeTO:  defaultWriteTimeout,
		outbox:   outbox,
		codec:    codec,
		settings: settings,
		logger:   logger,
		stateCh:  make(chan State, 32),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.notifyStates()
	return c
}

// OnEvent registers the callback invoked for every inbound event that is
// not handled by the channel itself. Events are delivered in receipt order.
func (c *Channel) OnEvent(fn func(event.ServerEvent)) { c.onEvent = fn }

// OnStateChange registers the connection-state observer.
func (c *Channel) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// OnAuthError registers the callback surfaced for auth:error events.
func (c *Channel) OnAuthError(fn func(string)) { c.onAuthError = fn }

// OnAuthenticated registers the callback invoked after auth:success.
func (c *Channel) OnAuthenticated(fn func(event.User)) { c.onAuth = fn }

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Actor returns the authenticated local actor id, or "" before auth.
func (c *Channel) Actor() types.ActorID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actor
}

// Connect validates the endpoint and starts dialing it. Calling Connect
// while already connecting or connected, or with an empty url, is a no-op.
func (c *Channel) Connect(url string) error {
	if url == "" {
		return nil
	}
	if err := storage.ValidateEndpoint(url); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.url = url
	c.manual = false
	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	go c.dial(gen)
	return nil
}

// Disconnect cancels any pending reconnect and closes the connection. The
// channel stays down until Connect is called again.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.manual = true
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.conn.Close()
		c.conn = nil
	}
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
}

// Send transmits the event immediately when connected, removing it from the
// persistent queue if it was pending there. When not connected the event is
// enqueued instead; sending while offline is never an error.
func (c *Channel) Send(ev event.ClientEvent) Outcome {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		if err := c.outbox.Enqueue(context.Background(), ev); err != nil {
			c.logger.Error().Err(err).Str("event", ev.ID).Msg("failed to enqueue outbound event")
		}
		return OutcomeQueued
	}

	err := c.writeLocked(ev)
	gen := c.gen
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Str("event", ev.ID).Msg("write failed; queueing event")
		if qerr := c.outbox.Enqueue(context.Background(), ev); qerr != nil {
			c.logger.Error().Err(qerr).Str("event", ev.ID).Msg("failed to enqueue after write failure")
		}
		c.handleClose(gen, err)
		return OutcomeQueued
	}

	eventsSent.WithLabelValues(string(ev.Type)).Inc()
	if err := c.outbox.Remove(context.Background(), ev.ID); err != nil {
		c.logger.Error().Err(err).Str("event", ev.ID).Msg("failed to clear event from queue")
	}
	return OutcomeSent
}

// Login sends interactive credentials to the server.
func (c *Channel) Login(email, password string) {
	c.Send(c.codec.Login(email, password))
}

// Logout announces the logout and forgets the persisted token and actor.
func (c *Channel) Logout() {
	c.Send(c.codec.Logout())
	if err := c.settings.SetToken(context.Background(), ""); err != nil {
		c.logger.Error().Err(err).Msg("failed to clear auth token")
	}
	c.mu.Lock()
	c.actor = ""
	c.mu.Unlock()
}

// RequestData asks the server for the full authoritative collections.
func (c *Channel) RequestData() {
	c.Send(c.codec.DataRequest())
}

func (c *Channel) dial(gen int) {
	ctx, span := tracer.Start(context.Background(), "transport.connect")
	span.SetAttributes(attribute.String("endpoint", c.url))
	defer span.End()

	logger := observability.LoggerWithTrace(ctx, c.logger)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Str("endpoint", c.url).Msg("dial failed")
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.setStateLocked(StateDisconnected)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.manual {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.flushQueue(gen)

	if token := c.settings.Token(context.Background()); token != "" {
		c.Send(c.codec.TokenLogin(token))
	}

	go c.readLoop(conn, gen)
}

// flushQueue transmits pending events oldest-first, preserving the causal
// order of operations against the same entity.
func (c *Channel) flushQueue(gen int) {
	for _, ev := range c.outbox.Drain() {
		c.mu.Lock()
		if gen != c.gen || c.conn == nil {
			c.mu.Unlock()
			return
		}
		err := c.writeLocked(ev)
		c.mu.Unlock()

		if err != nil {
			c.logger.Warn().Err(err).Str("event", ev.ID).Msg("queue flush interrupted")
			c.handleClose(gen, err)
			return
		}
		eventsSent.WithLabelValues(string(ev.Type)).Inc()
		if err := c.outbox.Remove(context.Background(), ev.ID); err != nil {
			c.logger.Error().Err(err).Str("event", ev.ID).Msg("failed to clear flushed event")
		}
	}
}

func (c *Channel) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("connection closed")
			}
			c.handleClose(gen, err)
			return
		}

		var ev event.ServerEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			inboundDropped.Inc()
			c.logger.Warn().Err(err).Msg("dropping malformed inbound message")
			continue
		}
		c.handleInbound(ev)
	}
}

func (c *Channel) handleInbound(ev event.ServerEvent) {
	switch ev.Type {
	case event.ServerAuthSuccess:
		var success event.AuthSuccess
		if err := json.Unmarshal(ev.Payload, &success); err != nil {
			inboundDropped.Inc()
			c.logger.Warn().Err(err).Msg("dropping malformed auth:success payload")
			return
		}
		if err := c.settings.SetToken(context.Background(), success.Token); err != nil {
			c.logger.Error().Err(err).Msg("failed to persist auth token")
		}
		c.mu.Lock()
		c.actor = success.User.ID
		c.mu.Unlock()
		c.logger.Info().Str("user", string(success.User.ID)).Msg("authenticated")
		if c.onAuth != nil {
			c.onAuth(success.User)
		}
		c.RequestData()
	case event.ServerAuthError:
		var authErr event.AuthError
		_ = json.Unmarshal(ev.Payload, &authErr)
		// A rejected token would fail again on every reconnect; forget it
		// and leave the session unauthenticated so the user can retry.
		if err := c.settings.SetToken(context.Background(), ""); err != nil {
			c.logger.Error().Err(err).Msg("failed to clear rejected token")
		}
		c.mu.Lock()
		c.actor = ""
		c.mu.Unlock()
		c.logger.Warn().Str("reason", authErr.Message).Msg("authentication failed")
		if c.onAuthError != nil {
			c.onAuthError(authErr.Message)
		}
	case event.ServerError:
		var info event.ServerErrorInfo
		_ = json.Unmarshal(ev.Payload, &info)
		c.logger.Warn().Str("message", info.Message).Msg("server reported an error")
	default:
		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}
}

func (c *Channel) handleClose(gen int, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	wasConnected := c.state != StateDisconnected
	c.setStateLocked(StateDisconnected)
	if wasConnected && !c.manual {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	if wasConnected {
		c.logger.Info().AnErr("cause", cause).Msg("channel disconnected")
	}
}

// scheduleReconnectLocked arms one reconnect attempt after the fixed delay.
// Callers must hold c.mu.
func (c *Channel) scheduleReconnectLocked() {
	if c.manual || c.url == "" {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	gen := c.gen
	c.timer = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		if gen != c.gen || c.manual || c.state != StateDisconnected {
			c.mu.Unlock()
			return
		}
		c.gen++
		next := c.gen
		c.setStateLocked(StateConnecting)
		c.mu.Unlock()

		reconnects.Inc()
		c.dial(next)
	})
}

// writeLocked transmits one event. Callers must hold c.mu.
func (c *Channel) writeLocked(ev event.ClientEvent) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTO))
	return c.conn.WriteJSON(ev)
}

// setStateLocked updates the state and hands the transition to the notify
// goroutine. Callers must hold c.mu; delivery happens off the lock so the
// observer can call back into the channel, and through a single goroutine so
// transitions are observed in the order they happened.
func (c *Channel) setStateLocked(next State) {
	if c.state == next {
		return
	}
	c.state = next
	connectionState.Set(float64(next))
	select {
	case c.stateCh <- next:
	default:
		c.logger.Warn().Stringer("state", next).Msg("state observer is not keeping up; dropping notification")
	}
}

// notifyStates delivers state transitions to the observer one at a time, in
// the order they were recorded.
func (c *Channel) notifyStates() {
	for next := range c.stateCh {
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(next)
		}
	}
}
