package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/sqlitestore/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	// A migration run produces one point per step plus one summary, so the
	// batch rarely fills; the flush interval is what usually sends it.
	fallbackBatchSize       = 50
	fallbackFlushIntervalMs = 2000
)

// Client is a migration metrics sink backed by the InfluxDB v2 write API.
//
// Points are queued without blocking and sent in batches. Failed batches are
// reported to the SetOnError callback. A Client that is not connected drops
// every point, so callers never need to check before writing.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	// target is "org/bucket", used in error messages.
	target string

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
}

// writeOptions maps the sink configuration onto client options. Zero or
// negative batch settings fall back to values sized for a migration run.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(fallbackBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flushMs := uint(fallbackFlushIntervalMs)
	if cfg.FlushInterval > 0 {
		// #nosec G115 -- positive, checked above
		flushMs = uint(cfg.FlushInterval) * 1000
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(flushMs)
}

// Connect opens the metrics sink described by cfg and pings the server.
//
// Parameters:
//   - cfg: sink configuration; URL, Token, Org and Bucket are required
//
// Returns:
//   - *Client: a connected sink
//   - error: ErrDisabled when cfg.Enabled is false, ErrConnectionFailed or
//     ErrUnhealthy when the server cannot be reached or reports a failure
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		target:    cfg.Org + "/" + cfg.Bucket,
		connected: true,
	}
	go c.forwardErrors(c.writeAPI.Errors())

	return c, nil
}

// ping reports a transport failure as is and a negative answer as ErrUnhealthy.
func ping(ctx context.Context, client influxdb2.Client) error {
	ok, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnhealthy
	}
	return nil
}

// forwardErrors drains the write API error channel until the client closes.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		if fn != nil {
			fn(fmt.Errorf("writing to %s: %w", c.target, err))
		}
	}
}

// HealthCheck pings the server. The cmd layer calls it once after Connect
// and drops the sink when it fails.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check for %s: %w", c.target, err)
	}
	return nil
}

// IsConnected reports whether Connect succeeded and Close has not run yet.
// It does not contact the server; see HealthCheck.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError installs the callback for failed batch writes.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Flush blocks until queued points are sent. No-op once closed.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close sends queued points and releases the client. It is safe to call on
// a nil or never-connected Client, and more than once.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	was := c.connected
	c.connected = false
	c.mu.Unlock()

	if !was || c.client == nil {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
