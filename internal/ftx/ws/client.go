package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"dn-arb-bot/internal/ftx/rest"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Client maintains the authenticated fills stream. Each execution the venue
// pushes is reduced to its order id and delivered on the events channel so
// the order monitor can re-check immediately instead of waiting for the next
// poll. The stream is an accelerator only; REST polling remains the source
// of truth and a dropped connection just reconnects.
type Client struct {
	url            string
	creds          rest.Credentials
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan int64
}

func New(url string, creds rest.Credentials, reconnectDelay, pingInterval time.Duration, log *zap.Logger) *Client {
	return &Client{
		url:            url,
		creds:          creds,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
		events:         make(chan int64, 64),
	}
}

// FillEvents is the stream of order ids reported filled. Events are dropped
// when the buffer is full; the poll loop covers anything missed.
func (c *Client) FillEvents() <-chan int64 {
	return c.events
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	if err := c.handshake(ctx, conn); err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "handshake failed")
		return err
	}
	c.conn = conn
	return nil
}

// handshake authenticates the connection and subscribes to the private fills
// channel. The login signature covers "{ts}websocket_login" with the REST
// secret.
func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) error {
	if c.creds.Key == "" {
		return errors.New("ws fills stream requires credentials")
	}
	ts := time.Now().UnixMilli()
	args := map[string]any{
		"key":  c.creds.Key,
		"sign": c.creds.SignPayload(fmt.Sprintf("%dwebsocket_login", ts)),
		"time": ts,
	}
	if c.creds.Subaccount != "" {
		args["subaccount"] = c.creds.Subaccount
	}
	if err := writeJSON(ctx, conn, map[string]any{"op": "login", "args": args}); err != nil {
		return err
	}
	return writeJSON(ctx, conn, map[string]any{"op": "subscribe", "channel": "fills"})
}

// Run reads the stream until the context ends, reconnecting after transport
// errors.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("ws connect failed", zap.Error(err))
			if err := wait(ctx, c.reconnectDelay); err != nil {
				return err
			}
			continue
		}
		pingCtx, cancel := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			c.pingLoop(pingCtx)
		}()
		err := c.readLoop(ctx)
		cancel()
		<-pingDone
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logReadLoopError(err)
		c.resetConn()
		if err := wait(ctx, c.reconnectDelay); err != nil {
			return err
		}
	}
}

type streamMessage struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type fillData struct {
	OrderID int64 `json:"orderId"`
}

func (c *Client) readLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("ws not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Debug("ws message unparseable", zap.Error(err))
		return
	}
	if msg.Type == "error" {
		c.log.Warn("ws error message", zap.Int("code", msg.Code), zap.String("msg", msg.Msg))
		return
	}
	if msg.Channel != "fills" || msg.Type != "update" {
		return
	}
	var fill fillData
	if err := json.Unmarshal(msg.Data, &fill); err != nil {
		c.log.Debug("ws fill unparseable", zap.Error(err))
		return
	}
	select {
	case c.events <- fill.OrderID:
	default:
		c.log.Debug("fill event buffer full", zap.Int64("order_id", fill.OrderID))
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	interval := c.pingInterval
	c.mu.Unlock()
	if conn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeJSON(ctx, conn, pingMessage); err != nil {
				return
			}
		}
	}
}

func (c *Client) logReadLoopError(err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure {
		c.log.Info("ws read loop ended", zap.Error(err))
		return
	}
	c.log.Warn("ws read loop ended", zap.Error(err))
}

func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}

func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

var pingMessage = map[string]any{"op": "ping"}
