package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/roomsync-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Stats counts points handed to the writer and batches InfluxDB rejected.
type Stats struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
}

// Client exports room telemetry to an InfluxDB v2 bucket.
//
// Points are queued on the library's non-blocking write API and flushed in
// batches. Once closed, writes are silently dropped.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	mu      sync.RWMutex
	open    bool
	onError func(err error)

	written atomic.Uint64
	failed  atomic.Uint64
}

// Connect pings the server and returns a client ready for writes.
// It returns ErrDisabled when cfg is not enabled and ErrConnectionFailed
// when the server cannot be reached or reports itself unhealthy.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batchSize = uint(cfg.BatchSize)
	}
	flushInterval := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flushInterval = time.Duration(cfg.FlushInterval) * time.Second
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(uint(flushInterval.Milliseconds())),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: %s is not healthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:      cfg,
		open:     true,
	}
	go c.drainErrors(c.writeAPI.Errors())
	return c, nil
}

// drainErrors forwards async batch failures until the write API closes.
func (c *Client) drainErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.failed.Add(1)

		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError sets the callback for batches the server rejects.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// IsConnected reports whether the client is open. It does not ping; use
// HealthCheck for that.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check: %s is not healthy", c.cfg.URL)
	}
	return nil
}

// Stats returns the write counters.
func (c *Client) Stats() Stats {
	return Stats{
		Written: c.written.Load(),
		Failed:  c.failed.Load(),
	}
}

// Flush blocks until queued points are sent. It is a no-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending points and releases the client. Calling it again
// is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

func (c *Client) write(p *write.Point) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.open {
		return
	}
	c.writeAPI.WritePoint(p)
	c.written.Add(1)
}
