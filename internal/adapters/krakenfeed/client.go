package krakenfeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"cryptosim/internal/ports"
)

const (
	defaultURL         = "wss://ws.kraken.com/v2"
	defaultDialTimeout = 10 * time.Second
	// Kraken throttles control messages per connection; pace subscribes so a
	// long symbol list cannot trip the limit.
	defaultControlInterval = 250 * time.Millisecond
	writeTimeout           = 5 * time.Second
	tickerChannel          = "ticker"
)

// Client maintains one outbound connection to the Kraken v2 websocket API and
// keeps an in-memory snapshot of the latest ticker price per subscribed
// symbol. It implements ports.PriceSource; snapshot reads never block on
// network I/O.
type Client struct {
	url      string
	symbols  []string
	logger   ports.Logger
	dialWait time.Duration

	snapshot *snapshot
	limiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	conn   *websocket.Conn
	connMu sync.RWMutex

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

// Config holds configuration for the Kraken feed client.
type Config struct {
	URL             string        // Websocket endpoint; defaults to the public v2 API
	Symbols         []string      // Pairs to subscribe, e.g. "BTC/USD"
	Logger          ports.Logger
	DialTimeout     time.Duration // Max wait for the initial connection
	ControlInterval time.Duration // Minimum spacing between control messages
}

// New creates a Kraken feed client. The connection is not opened until Start.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Kraken feed client")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol is required: %w", ports.ErrConfigurationError)
	}
	url := cfg.URL
	if url == "" {
		url = defaultURL
	}
	dialWait := cfg.DialTimeout
	if dialWait <= 0 {
		dialWait = defaultDialTimeout
	}
	interval := cfg.ControlInterval
	if interval <= 0 {
		interval = defaultControlInterval
	}

	return &Client{
		url:      url,
		symbols:  append([]string(nil), cfg.Symbols...),
		logger:   cfg.Logger,
		dialWait: dialWait,
		snapshot: newSnapshot(),
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Price returns the latest known price for the symbol. ok is false when no
// tick has arrived yet, which is distinct from a zero price.
func (c *Client) Price(symbol string) (decimal.Decimal, bool) {
	return c.snapshot.get(symbol)
}

// AllPrices returns an independent copy of the full snapshot.
func (c *Client) AllPrices() map[string]decimal.Decimal {
	return c.snapshot.all()
}

// Start opens the connection in a background goroutine and blocks until the
// first dial succeeds or the dial timeout expires. After the first success the
// client reconnects on its own with exponential backoff.
func (c *Client) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	go c.run()

	select {
	case <-c.ready:
		return nil
	case <-time.After(c.dialWait):
		return fmt.Errorf("timed out waiting for feed connection: %w", ports.ErrConnectionFailed)
	case <-c.ctx.Done():
		return fmt.Errorf("feed start aborted: %w", c.ctx.Err())
	}
}

// run maintains the connection: dial, subscribe, read until failure, back off,
// repeat. Exits only when the client context is cancelled.
func (c *Client) run() {
	defer close(c.done)
	backoffCfg := backoff.NewExponentialBackOff()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.Dial(c.ctx, c.url, nil)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Error(c.ctx, err, "Feed dial failed", map[string]interface{}{"url": c.url})
			if !c.sleep(backoffCfg.NextBackOff()) {
				return
			}
			continue
		}
		// Ticker frames for a couple dozen pairs stay small; the default read
		// limit is fine but raise it to be safe against status bursts.
		conn.SetReadLimit(1 << 20)

		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()

		c.readyOnce.Do(func() { close(c.ready) })
		backoffCfg.Reset()
		c.logger.Info(c.ctx, "Connected to Kraken websocket API", map[string]interface{}{"url": c.url})

		if err := c.sendControl(c.ctx, "subscribe", c.symbols); err != nil {
			c.logger.Error(c.ctx, err, "Ticker subscription failed")
		}

		err = c.readLoop(conn)
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()

		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn(c.ctx, "Feed connection lost, reconnecting", map[string]interface{}{"error": err.Error()})
		if !c.sleep(backoffCfg.NextBackOff()) {
			return
		}
	}
}

func (c *Client) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-c.ctx.Done():
		return false
	}
}

// sendControl writes a subscribe/unsubscribe request, paced by the control
// message limiter.
func (c *Client) sendControl(ctx context.Context, method string, symbols []string) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("%s: %w", method, ports.ErrFeedClosed)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacing %s request: %w", method, err)
	}

	req := subscribeRequest{
		Method: method,
		Params: subscribeParams{Channel: tickerChannel, Symbol: symbols},
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
	defer cancelWrite()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write %s request: %w", method, err)
	}
	c.logger.Info(ctx, "Control message sent", map[string]interface{}{"method": method, "symbols": len(symbols)})
	return nil
}

// readLoop reads one frame at a time and dispatches it. A malformed frame is
// logged and dropped; only transport errors end the loop.
func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		msgType, data, err := conn.Read(c.ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.MessageText {
			continue
		}
		c.handleMessage(c.ctx, data)
	}
}

// handleMessage decodes a single frame into its tagged variant and dispatches.
// Failures never propagate: one bad message must not take down the feed.
func (c *Client) handleMessage(ctx context.Context, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Error(ctx, err, "Failed to parse feed message", map[string]interface{}{"payload": string(raw)})
		return
	}

	switch env.kind() {
	case kindTick:
		c.handleTicker(ctx, &env)
	case kindSubscriptionAck:
		c.handleSubscriptionAck(ctx, &env)
	case kindHeartbeat:
		c.logger.Debug(ctx, "Heartbeat received")
	case kindStatus:
		c.handleStatus(ctx, &env)
	default:
		c.logger.Warn(ctx, "Unhandled feed message", map[string]interface{}{"payload": string(raw)})
	}
}

// handleTicker updates the snapshot from a ticker snapshot/update frame. A
// price that fails to parse is dropped and the snapshot entry left unchanged.
func (c *Client) handleTicker(ctx context.Context, env *envelope) {
	var entries []tickerEntry
	if err := json.Unmarshal(env.Data, &entries); err != nil {
		c.logger.Error(ctx, err, "Failed to parse ticker data")
		return
	}
	for _, entry := range entries {
		if entry.Symbol == "" || entry.Last == "" {
			continue
		}
		price, err := decimal.NewFromString(entry.Last.String())
		if err != nil {
			c.logger.Error(ctx, err, "Could not parse price, tick dropped", map[string]interface{}{
				"symbol": entry.Symbol,
				"last":   entry.Last.String(),
			})
			continue
		}
		c.snapshot.set(entry.Symbol, price)
		c.logger.Debug(ctx, "Price updated", map[string]interface{}{"symbol": entry.Symbol, "price": price.String()})
	}
}

// handleSubscriptionAck logs the outcome of a subscribe/unsubscribe request.
// Observability only; trading correctness does not depend on acks.
func (c *Client) handleSubscriptionAck(ctx context.Context, env *envelope) {
	var result subscriptionResult
	if len(env.Result) > 0 {
		_ = json.Unmarshal(env.Result, &result)
	}
	if env.Success != nil && *env.Success {
		c.logger.Info(ctx, "Subscription confirmed", map[string]interface{}{
			"method":  env.Method,
			"channel": result.Channel,
			"symbol":  result.Symbol,
		})
		return
	}
	c.logger.Error(ctx, errors.New(env.Error), "Subscription request rejected", map[string]interface{}{
		"method": env.Method,
		"symbol": result.Symbol,
	})
}

func (c *Client) handleStatus(ctx context.Context, env *envelope) {
	var entries []statusEntry
	if err := json.Unmarshal(env.Data, &entries); err != nil {
		c.logger.Warn(ctx, "Unparseable status message")
		return
	}
	for _, st := range entries {
		c.logger.Info(ctx, "Feed status update", map[string]interface{}{"system": st.System, "apiVersion": st.Version})
	}
}

// Shutdown unsubscribes on a best-effort basis and closes the connection.
// Unsubscribe failures are logged but never block the close.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.cancel == nil {
		return nil
	}

	if err := c.sendControl(ctx, "unsubscribe", c.symbols); err != nil {
		c.logger.Warn(ctx, "Unsubscribe on shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	c.cancel()

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "shutdown")
		c.conn = nil
	}
	c.connMu.Unlock()

	select {
	case <-c.done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for feed shutdown: %w", ctx.Err())
	}
	c.logger.Info(ctx, "Kraken feed shut down")
	return nil
}
