// Package realtime maintains a live subscription to a team's sync stream.
// The channel reconnects with backoff, treats server heartbeats as liveness,
// and notifies the caller when new events land so a pull can run promptly.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	gosync "sync"
	"time"

	"github.com/harper/dispatch/internal/clock"
)

// State is the channel lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateSubscribed State = "subscribed"
	StateBackoff    State = "backoff"
	StateClosed     State = "closed"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second

	// frameTimeout is how long the stream may go without any frame
	// (heartbeats included) before the connection is considered dead.
	// The server heartbeats every 25s, so two missed beats trip this.
	frameTimeout = 60 * time.Second
)

// Breaker gates reconnect attempts. *sync.CircuitBreaker satisfies it.
type Breaker interface {
	Allow() error
	RecordSuccess()
	RecordFailure()
}

// Config wires a Channel to one team's stream.
type Config struct {
	BaseURL  string
	Token    string
	TeamID   string
	DeviceID string

	// OnEvent fires with the server_seq of each sync frame.
	OnEvent func(serverSeq int64)

	// OnStatus fires on every state change. Optional.
	OnStatus func(state State, err error)

	// Breaker, when set, is consulted before every connect attempt and
	// fed the attempt's outcome.
	Breaker Breaker
}

// Channel is a self-healing subscription to GET /v1/teams/{team}/sync/stream.
type Channel struct {
	cfg    Config
	clk    clock.Clock
	http   *http.Client
	logger *slog.Logger

	mu     gosync.Mutex
	state  State
	cancel context.CancelFunc
	closed bool

	wg gosync.WaitGroup
}

// NewChannel builds a channel; Start begins the subscription.
func NewChannel(cfg Config, clk clock.Clock) *Channel {
	if clk == nil {
		clk = clock.Real()
	}
	return &Channel{
		cfg: cfg,
		clk: clk,
		// No client timeout: the stream is long-lived. Liveness is enforced
		// per-frame by the watchdog.
		http:   &http.Client{},
		logger: slog.Default().With("team", cfg.TeamID),
		state:  StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s State, err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(s, err)
	}
}

// Start launches the subscribe loop. Calling Start on a closed channel is a
// no-op.
func (c *Channel) Start(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Close tears the subscription down. Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(StateClosed, nil)
	}
}

// run reconnects until the context ends. Backoff doubles from 1s to 30s and
// resets after any successful subscription.
func (c *Channel) run(ctx context.Context) {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		if c.cfg.Breaker != nil {
			if err := c.cfg.Breaker.Allow(); err != nil {
				c.setState(StateBackoff, err)
				if !c.sleep(ctx, backoff) {
					return
				}
				continue
			}
		}

		c.setState(StateConnecting, nil)
		err := c.subscribe(ctx)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			c.logger.Debug("stream disconnected", "err", err, "retry_in", backoff)
			if c.cfg.Breaker != nil {
				c.cfg.Breaker.RecordFailure()
			}
		}

		c.setState(StateBackoff, err)
		if !c.sleep(ctx, backoff) {
			return
		}
		backoff = min(backoff*2, maxBackoff)

		// A subscription that made it to subscribed resets the schedule.
		if err == nil {
			backoff = initialBackoff
		}
	}
}

func (c *Channel) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.clk.After(d):
		return true
	}
}

// syncFrame is the payload of an "event: sync" frame.
type syncFrame struct {
	ServerSeq int64 `json:"server_seq"`
}

// subscribe holds one stream connection open, dispatching sync frames until
// the server goes quiet past the frame timeout or the connection drops.
// Returns nil when at least one frame was received before the drop.
func (c *Channel) subscribe(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/teams/%s/sync/stream", c.cfg.BaseURL, c.cfg.TeamID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "text/event-stream")
	if c.cfg.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.cfg.DeviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream: HTTP %d", resp.StatusCode)
	}

	if c.cfg.Breaker != nil {
		c.cfg.Breaker.RecordSuccess()
	}
	c.setState(StateSubscribed, nil)

	// Watchdog: any frame feeds the activity channel; silence past the
	// frame timeout closes the body, which unblocks the scanner. When the
	// scanner exits first (server dropped the stream), scanDone releases
	// the watchdog so reconnect is not held up waiting out the timeout.
	activity := make(chan struct{}, 1)
	scanDone := make(chan struct{})
	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		for {
			select {
			case <-ctx.Done():
				resp.Body.Close()
				return
			case <-scanDone:
				return
			case <-activity:
			case <-c.clk.After(frameTimeout):
				c.logger.Debug("stream silent past frame timeout")
				resp.Body.Close()
				return
			}
		}
	}()
	defer func() {
		close(scanDone)
		resp.Body.Close()
		<-watchdogDone
	}()

	sawFrame := false
	scanner := NewScanner(resp.Body)
	for scanner.Next() {
		sawFrame = true
		select {
		case activity <- struct{}{}:
		default:
		}

		frame := scanner.Frame()
		if frame.Comment || frame.Type != "sync" {
			continue
		}

		var sf syncFrame
		if err := json.Unmarshal([]byte(frame.Data), &sf); err != nil {
			c.logger.Warn("bad sync frame", "data", frame.Data, "err", err)
			continue
		}
		if c.cfg.OnEvent != nil {
			c.cfg.OnEvent(sf.ServerSeq)
		}
	}

	if err := scanner.Err(); err != nil && !sawFrame {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
