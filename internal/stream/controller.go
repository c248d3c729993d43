// Package stream reveals an already-known bot response in small chunks,
// re-rendering the whole revealed prefix on every tick.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"Bloom/internal/markdown"

	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultChunkSize   = 4
	DefaultInterval    = 15 * time.Millisecond
	DefaultSettleDelay = 300 * time.Millisecond
)

// Target receives rendered snapshots of a streaming message.
type Target interface {
	// Render replaces the target's content with html.
	Render(html string)
	// SetStreaming toggles the in-progress state of the target.
	SetStreaming(on bool)
}

// Controller owns the streaming state of one conversation view. At most one
// stream is active at a time; starting a new one finalizes the previous.
type Controller struct {
	chunkSize int
	interval  time.Duration
	settle    time.Duration
	render    func(string) string
	scroll    func()
	logger    *slog.Logger
	renders   metric.Int64Counter

	opMu   sync.Mutex // serializes Start, Finalize and Close
	mu     sync.Mutex // guards active
	active *job
}

// Option configures a Controller.
type Option func(*Controller)

// WithChunkSize sets how many characters are revealed per tick.
func WithChunkSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithInterval sets the delay between ticks.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithSettleDelay sets how long the in-progress state lingers after the
// last chunk.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.settle = d
		}
	}
}

// WithRenderer replaces markdown.Render.
func WithRenderer(render func(string) string) Option {
	return func(c *Controller) {
		if render != nil {
			c.render = render
		}
	}
}

// WithScroll registers the callback fired after every rendered chunk.
func WithScroll(scroll func()) Option {
	return func(c *Controller) {
		if scroll != nil {
			c.scroll = scroll
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMeter records a bloom.render.count counter on meter.
func WithMeter(meter metric.Meter) Option {
	return func(c *Controller) {
		if meter == nil {
			return
		}
		counter, err := meter.Int64Counter(
			"bloom.render.count",
			metric.WithDescription("Markdown renders performed while streaming"),
		)
		if err == nil {
			c.renders = counter
		}
	}
}

// NewController creates a Controller with the default chunk size, interval
// and settle delay.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		chunkSize: DefaultChunkSize,
		interval:  DefaultInterval,
		settle:    DefaultSettleDelay,
		render:    markdown.Render,
		scroll:    func() {},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type job struct {
	target Target
	runes  []rune

	// written only by the job goroutine; read by others after done closes
	revealed  int
	completed bool

	stop     chan struct{}
	done     chan struct{}
	finished chan struct{}
	once     sync.Once
}

func (j *job) finish() {
	j.once.Do(func() { close(j.finished) })
}

// Start streams fullText into target. If another stream is in progress it
// is finalized first. The returned channel is closed once this stream has
// either run to completion or been finalized.
func (c *Controller) Start(target Target, fullText string) <-chan struct{} {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.finalizeLocked()

	j := &job{
		target:   target,
		runes:    []rune(fullText),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	c.mu.Lock()
	c.active = j
	c.mu.Unlock()

	go c.run(j)
	return j.finished
}

// Finalize renders the active stream's buffered text immediately and ends
// it. It is a no-op when nothing is streaming.
func (c *Controller) Finalize() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.finalizeLocked()
}

// Active reports whether a stream is in progress.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Close finalizes any active stream. The Controller stays usable.
func (c *Controller) Close() error {
	c.Finalize()
	return nil
}

func (c *Controller) finalizeLocked() {
	c.mu.Lock()
	j := c.active
	c.active = nil
	c.mu.Unlock()

	if j == nil {
		return
	}

	close(j.stop)
	<-j.done

	if !j.completed {
		j.target.Render(c.renderText(string(j.runes[:j.revealed])))
		j.target.SetStreaming(false)
		c.logger.Debug("stream superseded", "revealed", j.revealed, "total", len(j.runes))
	}
	j.finish()
}

func (c *Controller) run(j *job) {
	defer close(j.done)

	j.target.SetStreaming(true)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for !c.step(j) {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
		}
	}

	if c.settle > 0 {
		timer := time.NewTimer(c.settle)
		defer timer.Stop()
		select {
		case <-j.stop:
			return
		case <-timer.C:
		}
	}

	c.mu.Lock()
	if c.active == j {
		c.active = nil
	}
	c.mu.Unlock()

	j.target.SetStreaming(false)
	j.completed = true
	j.finish()
	c.logger.Debug("stream completed", "chars", len(j.runes))
}

// step reveals the next chunk and reports whether the text is exhausted.
func (c *Controller) step(j *job) bool {
	end := j.revealed + c.chunkSize
	if end > len(j.runes) {
		end = len(j.runes)
	}
	j.revealed = end

	j.target.Render(c.renderText(string(j.runes[:end])))
	c.scroll()
	return end >= len(j.runes)
}

func (c *Controller) renderText(text string) string {
	if c.renders != nil {
		c.renders.Add(context.Background(), 1)
	}
	return c.render(text)
}
