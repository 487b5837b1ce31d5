package listener

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devblac/cw-indexer/internal/event"
)

// State is the listener's connection state.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
	StateDisconnected State = "disconnected"
)

// Tendermint event types the listener can subscribe to.
const (
	EventNewBlock = "NewBlock"
	EventTx       = "Tx"
)

const (
	baseReconnectDelay = time.Second
	maxReconnectDelay  = 30 * time.Second
	portWaitTimeout    = 30 * time.Second
)

// ReconnectDelay returns the backoff before reconnect attempt n (1-based):
// 1s, 2s, 4s, ... capped at 30s.
func ReconnectDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := baseReconnectDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxReconnectDelay {
			return maxReconnectDelay
		}
	}
	return d
}

// BlockHeader is the decoded header of a NewBlock message.
type BlockHeader struct {
	ChainID    string
	Height     uint64
	Time       string
	TimeUnixMs int64
}

// TxResult is the decoded payload of a Tx message.
type TxResult struct {
	Height uint64
	Tx     []byte
	Events []event.Event
}

// Callbacks are invoked from the read loop; implementations must not
// block for long.
type Callbacks struct {
	OnNewBlock func(BlockHeader)
	OnTx       func(hash string, res TxResult)
	// OnStateChange observes the connection state machine. attempt is the
	// reconnection attempt counter, 0 for the first connect.
	OnStateChange func(s State, isReconnection bool, attempt int)
}

// conn is the subset of *websocket.Conn the listener uses; tests inject
// fakes through the dial hook.
type conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

// Listener owns a long-lived subscription connection to a chain node's
// WebSocket endpoint, decoding NewBlock and Tx events into callbacks.
// Connection loss after a successful connect schedules reconnection with
// exponential backoff; failure of the very first connect is returned to
// the caller, who decides.
type Listener struct {
	wsURL       string
	events      []string
	cb          Callbacks
	log         *slog.Logger
	waitForPort bool
	base64Attrs bool

	dial func(ctx context.Context, wsURL string) (conn, error)

	mu            sync.Mutex
	conn          conn
	connected     bool
	everConnected bool
	attempt       int
	closed        bool
}

// Option configures a Listener.
type Option func(*Listener)

// WithWaitForPort makes Connect wait until the remote TCP port accepts
// connections before dialing. Skip for local sockets.
func WithWaitForPort() Option {
	return func(l *Listener) { l.waitForPort = true }
}

// WithBase64Attributes decodes event attribute keys and values as base64,
// for nodes running Tendermint 0.34 or earlier. Newer nodes send plain
// strings and must not opt in, since a plain value that happens to be
// valid base64 would be mangled.
func WithBase64Attributes() Option {
	return func(l *Listener) { l.base64Attrs = true }
}

// New builds a listener subscribing to the given tendermint event types
// (e.g. NewBlock, Tx).
func New(wsURL string, events []string, cb Callbacks, log *slog.Logger, opts ...Option) *Listener {
	l := &Listener{
		wsURL:  wsURL,
		events: events,
		cb:     cb,
		log:    log,
		dial: func(ctx context.Context, wsURL string) (conn, error) {
			c, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Connect dials the node, issues one subscribe request per configured
// event type, and starts the read loop. It is a no-op when a socket
// already exists.
func (l *Listener) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.conn != nil {
		l.mu.Unlock()
		return nil
	}
	l.closed = false
	isReconnection := l.everConnected
	attempt := l.attempt
	l.mu.Unlock()

	l.emit(StateConnecting, isReconnection, attempt)

	if l.waitForPort {
		if err := waitForPort(ctx, l.wsURL); err != nil {
			return fmt.Errorf("wait for node port: %w", err)
		}
	}

	c, err := l.dial(ctx, l.wsURL)
	if err != nil {
		if isReconnection {
			l.emit(StateError, true, attempt)
			l.scheduleReconnect()
			return nil
		}
		// First connect failing is the caller's problem; no auto-retry.
		return fmt.Errorf("dial %s: %w", l.wsURL, err)
	}

	l.mu.Lock()
	l.conn = c
	l.connected = true
	l.everConnected = true
	l.attempt = 0
	l.mu.Unlock()

	l.emit(StateConnected, isReconnection, attempt)

	for i, ev := range l.events {
		req := subscribeRequest{
			JSONRPC: "2.0",
			Method:  "subscribe",
			ID:      i + 1,
		}
		req.Params.Query = fmt.Sprintf("tm.event = '%s'", ev)
		if err := c.WriteJSON(req); err != nil {
			// A half-subscribed socket is useless; tear it down so the next
			// Connect dials fresh instead of no-opping on a dead conn.
			l.mu.Lock()
			l.conn = nil
			l.connected = false
			l.mu.Unlock()
			_ = c.Close()
			if isReconnection {
				l.log.Error("subscribe failed on reconnect", "event", ev, "error", err)
				l.emit(StateError, true, attempt)
				l.scheduleReconnect()
				return nil
			}
			return fmt.Errorf("subscribe %s: %w", ev, err)
		}
	}

	go l.readLoop(c)
	return nil
}

// Disconnect terminates the socket and suppresses reconnection. It is
// idempotent.
func (l *Listener) Disconnect() {
	l.mu.Lock()
	c := l.conn
	l.conn = nil
	l.connected = false
	l.closed = true
	l.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

// Connected reports whether a live socket exists.
func (l *Listener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Listener) readLoop(c conn) {
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			l.onReadError(c, err)
			return
		}
		l.handleMessage(raw)
	}
}

func (l *Listener) onReadError(c conn, err error) {
	l.mu.Lock()
	// A stale loop whose socket was already replaced must not disturb the
	// current connection.
	if l.conn != c && !l.closed {
		l.mu.Unlock()
		return
	}
	wasClosed := l.closed
	l.conn = nil
	l.connected = false
	l.mu.Unlock()

	if wasClosed {
		l.emit(StateDisconnected, false, 0)
		return
	}

	l.log.Error("websocket connection lost", "error", err)
	l.emit(StateError, true, l.currentAttempt())
	l.emit(StateDisconnected, true, l.currentAttempt())
	l.scheduleReconnect()
}

func (l *Listener) scheduleReconnect() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.attempt++
	attempt := l.attempt
	l.mu.Unlock()

	delay := ReconnectDelay(attempt)
	l.log.Info("scheduling reconnect", "attempt", attempt, "delay", delay)
	time.AfterFunc(delay, func() {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
		if err := l.Connect(context.Background()); err != nil {
			l.log.Error("reconnect failed", "attempt", attempt, "error", err)
			l.scheduleReconnect()
		}
	})
}

func (l *Listener) currentAttempt() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempt
}

func (l *Listener) emit(s State, isReconnection bool, attempt int) {
	if l.cb.OnStateChange != nil {
		l.cb.OnStateChange(s, isReconnection, attempt)
	}
}

type subscribeRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      int    `json:"id"`
	Params  struct {
		Query string `json:"query"`
	} `json:"params"`
}

const (
	typeNewBlock = "tendermint/event/NewBlock"
	typeTx       = "tendermint/event/Tx"
)

type inboundMessage struct {
	Result struct {
		Data struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"data"`
	} `json:"result"`
}

// handleMessage decodes one inbound frame. Subscription acks and
// heartbeats lack result.data.type and are ignored; unknown types and
// malformed JSON are logged and dropped, never fatal.
func (l *Listener) handleMessage(raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		l.log.Warn("malformed websocket message", "error", err)
		return
	}
	switch msg.Result.Data.Type {
	case "":
		// Subscription ack or heartbeat noise.
	case typeNewBlock:
		header, err := decodeNewBlock(msg.Result.Data.Value)
		if err != nil {
			l.log.Warn("bad NewBlock payload", "error", err)
			return
		}
		if l.cb.OnNewBlock != nil {
			l.cb.OnNewBlock(header)
		}
	case typeTx:
		hash, res, err := decodeTx(msg.Result.Data.Value, l.base64Attrs)
		if err != nil {
			l.log.Warn("bad Tx payload", "error", err)
			return
		}
		if l.cb.OnTx != nil {
			l.cb.OnTx(hash, res)
		}
	default:
		l.log.Warn("unknown event type", "type", msg.Result.Data.Type)
	}
}

func decodeNewBlock(raw json.RawMessage) (BlockHeader, error) {
	var payload struct {
		Block struct {
			Header struct {
				ChainID string `json:"chain_id"`
				Height  string `json:"height"`
				Time    string `json:"time"`
			} `json:"header"`
		} `json:"block"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return BlockHeader{}, err
	}
	height, err := strconv.ParseUint(payload.Block.Header.Height, 10, 64)
	if err != nil {
		return BlockHeader{}, fmt.Errorf("parse height %q: %w", payload.Block.Header.Height, err)
	}
	header := BlockHeader{
		ChainID: payload.Block.Header.ChainID,
		Height:  height,
		Time:    payload.Block.Header.Time,
	}
	if ts, err := time.Parse(time.RFC3339Nano, payload.Block.Header.Time); err == nil {
		header.TimeUnixMs = ts.UnixMilli()
	}
	return header, nil
}

// decodeTx decodes a Tx payload; the transaction hash is the hex-encoded
// SHA-256 digest of the raw transaction bytes. base64Attrs selects the
// legacy attribute encoding of Tendermint 0.34 nodes.
func decodeTx(raw json.RawMessage, base64Attrs bool) (string, TxResult, error) {
	var payload struct {
		TxResult struct {
			Height string `json:"height"`
			Tx     string `json:"tx"`
			Result struct {
				Events []struct {
					Type       string `json:"type"`
					Attributes []struct {
						Key   string `json:"key"`
						Value string `json:"value"`
					} `json:"attributes"`
				} `json:"events"`
			} `json:"result"`
		} `json:"TxResult"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", TxResult{}, err
	}
	height, err := strconv.ParseUint(payload.TxResult.Height, 10, 64)
	if err != nil {
		return "", TxResult{}, fmt.Errorf("parse height %q: %w", payload.TxResult.Height, err)
	}
	txBytes, err := base64.StdEncoding.DecodeString(payload.TxResult.Tx)
	if err != nil {
		return "", TxResult{}, fmt.Errorf("decode tx bytes: %w", err)
	}
	sum := sha256.Sum256(txBytes)
	hash := hex.EncodeToString(sum[:])

	events := make([]event.Event, 0, len(payload.TxResult.Result.Events))
	for _, ev := range payload.TxResult.Result.Events {
		e := event.Event{Type: ev.Type}
		for _, a := range ev.Attributes {
			key, value := a.Key, a.Value
			if base64Attrs {
				key, value = decodeAttr(key), decodeAttr(value)
			}
			e.Attributes = append(e.Attributes, event.Attribute{Key: key, Value: value})
		}
		events = append(events, e)
	}
	return hash, TxResult{Height: height, Tx: txBytes, Events: events}, nil
}

// decodeAttr decodes one legacy base64 attribute, keeping the original
// string when it does not decode to printable text (binary payloads stay
// encoded).
func decodeAttr(s string) string {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	for _, b := range decoded {
		if b < 0x20 || b > 0x7e {
			return s
		}
	}
	if len(decoded) == 0 {
		return s
	}
	return string(decoded)
}

// waitForPort polls the remote TCP port until it accepts a connection.
func waitForPort(ctx context.Context, wsURL string) error {
	u, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("parse ws url: %w", err)
	}
	host := u.Host
	deadline := time.Now().Add(portWaitTimeout)
	for {
		c, err := net.DialTimeout("tcp", host, time.Second)
		if err == nil {
			c.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("port %s not reachable: %w", host, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}
