// Package spoolws connects a print client to a spooler over WebSocket. The
// Client implements spooler.Service: requests go out as JSON-RPC calls,
// document sessions are registered locally and driven by the spooler's
// notifications, and job state changes fan out to registered listeners.
//
// One Client is one connection. Losing the connection fails in-flight calls
// with spooler.ErrUnavailable; registered document sessions stay alive and
// are torn down by their lifecycle owner, not by the transport.
package spoolws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joeshaw/envdecode"

	"github.com/spoolworks/printspool-go/internal/callertoken"
	"github.com/spoolworks/printspool-go/internal/logctx"
	"github.com/spoolworks/printspool-go/internal/wire"
	"github.com/spoolworks/printspool-go/spooler"
)

// ErrUnauthorized indicates the spooler rejected the connection's caller
// token.
var ErrUnauthorized = errors.New("spoolws: unauthorized")

// Config carries the connection settings. Fields left zero are filled from
// the environment by NewFromEnv or defaulted by Dial.
type Config struct {
	// URL is the spooler's WebSocket endpoint.
	URL string `env:"PRINTSPOOL_WS_URL,default=ws://localhost:7319/spool"`
	// TokenSecret, when non-empty, mints a caller token presented as a
	// bearer credential during the handshake.
	TokenSecret string `env:"PRINTSPOOL_TOKEN_SECRET"`
	// UnixSocket, when non-empty, reaches the spooler over a unix domain
	// socket instead of TCP. URL still selects the request path and host
	// header.
	UnixSocket string `env:"PRINTSPOOL_UNIX_SOCKET"`
	// DialTimeout bounds the WebSocket handshake.
	DialTimeout time.Duration `env:"PRINTSPOOL_DIAL_TIMEOUT,default=10s"`

	// Caller identifies the printing application. Defaults to the
	// executable name.
	Caller spooler.Caller
	// Logger receives transport logs. Defaults to slog.Default().
	Logger *slog.Logger
}

type cancelKey struct {
	sessionID string
	seq       int32
}

// Client is a WebSocket-backed spooler.Service.
type Client struct {
	log    *slog.Logger
	ws     *websocket.Conn
	caller spooler.Caller

	// writeMu serializes all writes to the connection.
	writeMu sync.Mutex

	mu        sync.Mutex
	nextID    int64
	pending   map[string]chan *wire.Response
	sessions  map[string]spooler.DocumentSession
	cancels   map[cancelKey]func()
	listeners map[spooler.JobStateListener]struct{}
	watching  bool
	closed    bool

	readDone chan struct{}
}

var _ spooler.Service = (*Client)(nil)

// NewFromEnv dials using configuration from the environment.
func NewFromEnv(ctx context.Context) (*Client, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	return Dial(ctx, &cfg)
}

// Dial opens the connection and starts the read loop. A 401 during the
// handshake is reported as ErrUnauthorized.
func Dial(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.URL == "" {
		cfg.URL = "ws://localhost:7319/spool"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = slog.New(logctx.Handler{Handler: log.Handler()})

	caller := cfg.Caller
	if caller.App == "" {
		caller.App = executableName()
	}

	header := http.Header{}
	if cfg.TokenSecret != "" {
		auth, err := callertoken.New(callertoken.DefaultConfig([]byte(cfg.TokenSecret)))
		if err != nil {
			return nil, fmt.Errorf("spoolws: configure caller token: %w", err)
		}
		tok, err := auth.Mint(caller)
		if err != nil {
			return nil, fmt.Errorf("spoolws: mint caller token: %w", err)
		}
		header.Set("Authorization", "Bearer "+tok)
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	if cfg.UnixSocket != "" {
		socket := cfg.UnixSocket
		dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		}
	}
	ws, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: dial %s", ErrUnauthorized, cfg.URL)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", spooler.ErrUnavailable, cfg.URL, err)
	}

	c := &Client{
		log:       log,
		ws:        ws,
		caller:    caller,
		pending:   make(map[string]chan *wire.Response),
		sessions:  make(map[string]spooler.DocumentSession),
		cancels:   make(map[cancelKey]func()),
		listeners: make(map[spooler.JobStateListener]struct{}),
		readDone:  make(chan struct{}),
	}

	readCtx := logctx.WithConnData(context.Background(), &logctx.ConnData{
		RemoteAddr: cfg.URL,
		CallerApp:  caller.App,
	})
	go c.readLoop(readCtx)

	log.InfoContext(readCtx, "spoolws.connected")
	return c, nil
}

func executableName() string {
	path, err := os.Executable()
	if err != nil {
		return "unknown"
	}
	return filepath.Base(path)
}

// Close tears down the connection. Registered document sessions are left
// untouched; their lifecycle owners destroy them.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.ws.Close()
	<-c.readDone
	return err
}

func (c *Client) send(msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *Client) notify(method string, params any) error {
	msg, err := wire.NewNotification(method, params)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// call issues a request and waits for its response, the context, or loss of
// the connection.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: connection closed", spooler.ErrUnavailable)
	}
	c.nextID++
	id := wire.NewIntID(c.nextID)
	ch := make(chan *wire.Response, 1)
	c.pending[id.String()] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id.String())
		c.mu.Unlock()
	}()

	req, err := wire.NewRequest(id, method, params)
	if err != nil {
		return err
	}
	if err := c.send(req); err != nil {
		return fmt.Errorf("%w: send %s: %v", spooler.ErrUnavailable, method, err)
	}

	select {
	case res := <-ch:
		if res.Error != nil {
			return c.mapError(res.Error)
		}
		if result != nil && len(res.Result) > 0 {
			if err := json.Unmarshal(res.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.readDone:
		return fmt.Errorf("%w: connection closed", spooler.ErrUnavailable)
	}
}

func (c *Client) mapError(e *wire.Error) error {
	switch e.Code {
	case wire.ErrorCodeJobNotFound:
		return fmt.Errorf("%w: %s", spooler.ErrJobNotFound, e.Message)
	case wire.ErrorCodeUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, e.Message)
	default:
		return e
	}
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.readDone)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.log.WarnContext(ctx, "spoolws.connection_lost", slog.String("error", err.Error()))
			}
			return
		}

		var msg wire.AnyMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.WarnContext(ctx, "spoolws.bad_message", slog.String("error", err.Error()))
			continue
		}

		switch msg.Type() {
		case "response":
			c.dispatchResponse(msg.AsResponse())
		case "notification":
			c.dispatchNotification(ctx, msg.AsRequest())
		default:
			// The spooler only sends notifications and responses.
			c.log.WarnContext(ctx, "spoolws.unexpected_request", slog.String("method", msg.Method))
		}
	}
}

func (c *Client) dispatchResponse(res *wire.Response) {
	key := res.ID.String()

	c.mu.Lock()
	ch := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()

	if ch == nil {
		c.log.Debug("spoolws.orphan_response", slog.String("id", key))
		return
	}
	ch <- res
}

func (c *Client) dispatchNotification(ctx context.Context, req *wire.Request) {
	switch req.Method {
	case wire.MethodDocumentStart,
		wire.MethodDocumentLayout,
		wire.MethodDocumentWrite,
		wire.MethodDocumentFinish,
		wire.MethodDocumentCancel:
		c.handleDocumentNotification(ctx, req)
	case wire.MethodJobStateChanged:
		var p wire.JobStateChangedParams
		if err := req.UnmarshalParams(&p); err != nil {
			c.log.WarnContext(ctx, "spoolws.bad_params", slog.String("method", req.Method))
			return
		}
		c.mu.Lock()
		listeners := make([]spooler.JobStateListener, 0, len(c.listeners))
		for l := range c.listeners {
			listeners = append(listeners, l)
		}
		c.mu.Unlock()
		for _, l := range listeners {
			l.OnJobStateChanged(p.JobID)
		}
	default:
		c.log.WarnContext(ctx, "spoolws.unknown_notification", slog.String("method", req.Method))
	}
}

func (c *Client) registerCancel(sessionID string, seq int32, cancel func()) {
	c.mu.Lock()
	c.cancels[cancelKey{sessionID: sessionID, seq: seq}] = cancel
	c.mu.Unlock()
}

func (c *Client) unregisterCancel(sessionID string, seq int32) {
	c.mu.Lock()
	delete(c.cancels, cancelKey{sessionID: sessionID, seq: seq})
	c.mu.Unlock()
}

func (c *Client) dropSession(sessionID string) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	for key := range c.cancels {
		if key.sessionID == sessionID {
			delete(c.cancels, key)
		}
	}
	c.mu.Unlock()
}
