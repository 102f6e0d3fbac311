package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/remapd/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
	defaultBatchSize      = 100
	defaultFlushSeconds   = 10
)

// pointWriter is the part of api.WriteAPI the client uses.
type pointWriter interface {
	WritePoint(p *write.Point)
	Flush()
	Errors() <-chan error
}

// pinger checks server health. Implemented by influxdb2.Client.
type pinger interface {
	Ping(ctx context.Context) (bool, error)
}

// Stats counts points handed to the write API and points dropped because
// the client was closed or input recording is off.
type Stats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
}

// Client batches remapd telemetry points into one bucket.
//
// All methods are safe for concurrent use. Writes never block the caller;
// the caller is usually an input reaction.
type Client struct {
	writer pointWriter
	ping   pinger
	closer func()

	recordInputs bool

	mu      sync.RWMutex
	open    bool
	onError func(err error)

	written atomic.Uint64
	dropped atomic.Uint64
}

// Connect builds the client and pings the server once.
//
// Returns ErrDisabled when telemetry is off in config and wraps
// ErrConnectionFailed when the server is unreachable or unhealthy.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := time.Duration(cfg.FlushInterval) * time.Second
	if flush <= 0 {
		flush = defaultFlushSeconds * time.Second
	}

	// #nosec G115 -- both values are positive here
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush.Milliseconds()))
	raw := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	healthy, err := raw.Ping(pingCtx)
	switch {
	case err != nil:
		raw.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !healthy:
		raw.Close()
		return nil, fmt.Errorf("%w: %s not healthy", ErrConnectionFailed, cfg.URL)
	}

	c := newClient(raw.WriteAPI(cfg.Org, cfg.Bucket), raw, cfg.RecordInputs)
	c.closer = raw.Close
	return c, nil
}

func newClient(w pointWriter, p pinger, recordInputs bool) *Client {
	c := &Client{
		writer:       w,
		ping:         p,
		recordInputs: recordInputs,
		open:         true,
	}
	go c.forwardErrors(w.Errors())
	return c
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		if fn != nil {
			fn(err)
		}
	}
}

// write hands p to the batcher, or counts it as dropped once closed.
func (c *Client) write(p *write.Point) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.open {
		c.dropped.Add(1)
		return
	}
	c.writer.WritePoint(p)
	c.written.Add(1)
}

// Close flushes buffered points and releases the connection. Later writes
// are dropped.
func (c *Client) Close() error {
	c.mu.Lock()
	wasOpen := c.open
	c.open = false
	c.mu.Unlock()

	if !wasOpen {
		return nil
	}
	c.writer.Flush()
	if c.closer != nil {
		c.closer()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.ping.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// IsConnected reports whether the client accepts writes.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// SetOnError sets a callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush blocks until buffered points are written. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writer.Flush()
}

// Stats returns the write counters.
func (c *Client) Stats() Stats {
	return Stats{Written: c.written.Load(), Dropped: c.dropped.Load()}
}
