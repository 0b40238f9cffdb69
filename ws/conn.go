package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-chat-client/globals"
	"github.com/tcriess/lightspeed-chat-client/types"
)

const (
	maxMessageSize     = 64 * 1024
	pongWait           = 2 * time.Minute
	pingPeriod         = time.Minute
	writeWait          = 10 * time.Second
	sendChannelSize    = 1000
	eventChannelSize   = 1000
	stateChannelSize   = 16
	defaultDialTimeout = 10 * time.Second
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("connection manager closed")
)

// State is the lifecycle of the channel: connecting -> connected | error, connected -> disconnected.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type StateChange struct {
	State State
	Err   error
}

// Identity is sent as query parameters when dialing. The token is opaque to the client.
type Identity struct {
	Username string
	IdToken  string
	Provider string
}

type Options struct {
	URL      string
	Identity Identity
	// Attempts bounds the dials per connection cycle, Delay is the fixed pause between them.
	Attempts int
	Delay    time.Duration
	Dialer   *websocket.Dialer
	Logger   hclog.Logger
}

// Manager owns the one live websocket to the authority. It redials on loss, and on every
// successful dial it first re-sends the join registered with Track, so the room
// subscription survives reconnects.
type Manager struct {
	opts   Options
	dialer *websocket.Dialer
	logger hclog.Logger

	events chan types.InboundEvent
	states chan StateChange

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	link    *link
	rejoin  *types.Join
	started bool
	closed  bool

	wg sync.WaitGroup
}

func NewManager(opts Options) *Manager {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultDialTimeout,
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:   opts,
		dialer: dialer,
		logger: globals.Logger(opts.Logger).Named("ws"),
		events: make(chan types.InboundEvent, eventChannelSize),
		states: make(chan StateChange, stateChannelSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Events delivers decoded inbound events in the order they were read.
func (m *Manager) Events() <-chan types.InboundEvent {
	return m.events
}

// States delivers lifecycle changes.
func (m *Manager) States() <-chan StateChange {
	return m.states
}

// Track registers the join to replay whenever a connection is (re)established. A join
// without a room clears it.
func (m *Manager) Track(join types.Join) {
	m.mu.Lock()
	m.rejoin = &join
	m.mu.Unlock()
}

// Connect starts the connection cycle in the background. It may be called once.
func (m *Manager) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.started {
		return fmt.Errorf("already connected")
	}
	if _, err := m.dialURL(); err != nil {
		return err
	}
	m.started = true
	m.wg.Add(1)
	go m.run()
	return nil
}

// Emit encodes ev and queues it on the live connection.
func (m *Manager) Emit(ev types.OutboundEvent) error {
	data, err := types.Encode(ev)
	if err != nil {
		return err
	}
	m.mu.Lock()
	l, closed := m.link, m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if l == nil {
		return ErrNotConnected
	}
	select {
	case l.send <- data:
		return nil
	case <-l.done:
		return ErrNotConnected
	}
}

// Close releases the connection and stops reconnecting. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.wg.Wait()
		return nil
	}
	m.closed = true
	l := m.link
	m.mu.Unlock()

	close(m.done)
	m.cancel()
	if l != nil {
		l.close()
	}
	m.wg.Wait()
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) setState(state State, err error) {
	if err != nil {
		m.logger.Info("connection state", "state", state, "error", err)
	} else {
		m.logger.Debug("connection state", "state", state)
	}
	select {
	case m.states <- StateChange{State: state, Err: err}:
	case <-m.done:
	}
}

func (m *Manager) dialURL() (string, error) {
	u, err := url.Parse(m.opts.URL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid websocket url %q", m.opts.URL)
	}
	q := u.Query()
	q.Set("username", m.opts.Identity.Username)
	if m.opts.Identity.IdToken != "" {
		q.Set("id_token", m.opts.Identity.IdToken)
		q.Set("provider", m.opts.Identity.Provider)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (m *Manager) dial() (*websocket.Conn, error) {
	u, err := m.dialURL()
	if err != nil {
		return nil, err
	}
	operation := func() (*websocket.Conn, error) {
		conn, resp, err := m.dialer.DialContext(m.ctx, u, nil)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return conn, nil
	}
	return backoff.Retry(m.ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(m.opts.Delay)),
		backoff.WithMaxTries(uint(m.opts.Attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.logger.Warn("could not connect, retrying", "error", err, "next", next)
			m.setState(StateError, err)
		}),
	)
}

// run is the connection cycle: dial, replay the join, pump until the connection drops, repeat.
// It gives up when the dial attempts of one cycle are exhausted.
func (m *Manager) run() {
	defer m.wg.Done()
	for {
		m.setState(StateConnecting, nil)
		conn, err := m.dial()
		if err != nil {
			if m.isClosed() {
				return
			}
			m.setState(StateError, err)
			return
		}
		l := newLink(conn)
		if err := m.resubscribe(conn); err != nil {
			conn.Close()
			if m.isClosed() {
				return
			}
			m.setState(StateDisconnected, err)
			continue
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.link = l
		m.mu.Unlock()
		m.setState(StateConnected, nil)

		go l.writeLoop(m.logger)
		err = m.readLoop(l)

		m.mu.Lock()
		m.link = nil
		m.mu.Unlock()
		l.close()
		<-l.writerDone

		if m.isClosed() {
			return
		}
		m.setState(StateDisconnected, err)
	}
}

func (m *Manager) resubscribe(conn *websocket.Conn) error {
	m.mu.Lock()
	rejoin := m.rejoin
	m.mu.Unlock()
	if rejoin == nil || rejoin.Room == "" {
		return nil
	}
	data, err := types.Encode(*rejoin)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	m.logger.Debug("resubscribing", "room", rejoin.Room)
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop pumps messages from the websocket connection to the Events channel.
//
// There is at most one reader on a connection, all reads happen on the run goroutine.
// Frames that cannot be decoded are logged and skipped.
func (m *Manager) readLoop(l *link) error {
	conn := l.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn("ws closed unexpectedly", "error", err)
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, err := types.DecodeInbound(raw)
		if err != nil {
			if errors.Is(err, types.ErrUnknownEvent) {
				m.logger.Debug("ignoring event", "error", err)
			} else {
				m.logger.Error("could not decode event", "error", err)
			}
			continue
		}
		select {
		case m.events <- ev:
		case <-m.done:
			return ErrClosed
		case <-l.done:
			return ErrNotConnected
		}
	}
}

// link is one established connection and its write side.
type link struct {
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}
	once       sync.Once
}

func newLink(conn *websocket.Conn) *link {
	return &link{
		conn:       conn,
		send:       make(chan []byte, sendChannelSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (l *link) close() {
	l.once.Do(func() { close(l.done) })
}

// writeLoop pumps queued messages to the websocket connection and keeps it alive with pings.
//
// There is at most one writer on a connection, all writes (after the initial join) happen here.
func (l *link) writeLoop(logger hclog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		l.conn.Close()
		close(l.writerDone)
	}()
	for {
		select {
		case message := <-l.send:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Info("could not write to ws connection, exiting write loop", "error", err)
				l.close()
				return
			}

		case <-ticker.C:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Info("could not send ping message, exiting write loop", "error", err)
				l.close()
				return
			}

		case <-l.done:
			_ = l.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
