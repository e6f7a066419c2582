package anilist

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

// throttleRetryBudget bounds automatic retries of rate-limited requests.
const throttleRetryBudget = 3

// Limits parameterize gateway admission.
type Limits struct {
	MaxConcurrent  int           // requests in flight at once
	Reservoir      int           // token bucket capacity
	RefillAmount   int           // tokens added per interval
	RefillInterval time.Duration // bucket refill period
	MinSpacing     time.Duration // minimum gap between dispatches
}

// DefaultLimits stays inside AniList's published 90 req/min budget with
// headroom for the occasional burst.
func DefaultLimits() Limits {
	return Limits{
		MaxConcurrent:  2,
		Reservoir:      90,
		RefillAmount:   90,
		RefillInterval: time.Minute,
		MinSpacing:     700 * time.Millisecond,
	}
}

// Request is one upstream GraphQL call.
type Request struct {
	Token     string
	Query     string
	Variables map[string]any
}

type jobResult struct {
	data json.RawMessage
	err  error
}

type job struct {
	ctx    context.Context
	req    Request
	id     string
	result chan jobResult
}

// Gateway is the single chokepoint for every AniList call. It enforces the
// concurrency ceiling, the token reservoir, minimum spacing, and the shared
// throttling pause; queued requests dispatch in arrival order.
type Gateway struct {
	client *Client
	limits Limits

	queue chan *job
	slots chan struct{}
	quit  chan struct{}
	once  sync.Once

	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
	pause      chan struct{} // non-nil while the shared throttle pause is active

	lastDispatch time.Time
}

// NewGateway creates a gateway and starts its dispatcher.
func NewGateway(client *Client, limits Limits) *Gateway {
	if limits.MaxConcurrent <= 0 {
		limits.MaxConcurrent = 1
	}
	if limits.Reservoir <= 0 {
		limits.Reservoir = 1
	}
	if limits.RefillAmount <= 0 {
		limits.RefillAmount = limits.Reservoir
	}
	if limits.RefillInterval <= 0 {
		limits.RefillInterval = time.Minute
	}
	g := &Gateway{
		client:     client,
		limits:     limits,
		queue:      make(chan *job, 256),
		slots:      make(chan struct{}, limits.MaxConcurrent),
		quit:       make(chan struct{}),
		tokens:     limits.Reservoir,
		lastRefill: time.Now(),
	}
	go g.dispatch()
	return g
}

// Close stops the dispatcher. Queued jobs fail with their context error or
// remain unserved; callers are expected to be shutting down too.
func (g *Gateway) Close() {
	g.once.Do(func() { close(g.quit) })
}

// Execute queues one request and waits for its result.
func (g *Gateway) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	j := &job{
		ctx:    ctx,
		req:    req,
		id:     uuid.NewString()[:8],
		result: make(chan jobResult, 1),
	}
	select {
	case g.queue <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.quit:
		return nil, context.Canceled
	}
	select {
	case r := <-j.result:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// dispatch releases queued jobs FIFO as capacity frees.
func (g *Gateway) dispatch() {
	for {
		select {
		case <-g.quit:
			return
		case j := <-g.queue:
			if err := g.admit(j.ctx); err != nil {
				j.result <- jobResult{err: err}
				continue
			}
			select {
			case g.slots <- struct{}{}:
			case <-g.quit:
				j.result <- jobResult{err: context.Canceled}
				return
			}
			go g.run(j)
		}
	}
}

// admit blocks until the pause has cleared, a reservoir token is available,
// and the minimum spacing has elapsed.
func (g *Gateway) admit(ctx context.Context) error {
	if err := g.awaitPause(ctx); err != nil {
		return err
	}
	if err := g.takeToken(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	wait := g.limits.MinSpacing - time.Since(g.lastDispatch)
	g.mu.Unlock()
	if wait > 0 {
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
	g.mu.Lock()
	g.lastDispatch = time.Now()
	g.mu.Unlock()
	return nil
}

func (g *Gateway) run(j *job) {
	defer func() { <-g.slots }()

	data, err := retry.DoWithData(
		func() (json.RawMessage, error) {
			if err := g.awaitPause(j.ctx); err != nil {
				return nil, retry.Unrecoverable(err)
			}
			data, err := g.client.Do(j.ctx, j.req.Token, j.req.Query, j.req.Variables)
			if err != nil {
				var throttled *ThrottledError
				if errors.As(err, &throttled) {
					log.Printf("[gateway] request %s throttled, pausing %s", j.id, throttled.RetryAfter)
					g.startPause(throttled.RetryAfter)
					return nil, err
				}
				return nil, retry.Unrecoverable(err)
			}
			return data, nil
		},
		retry.Attempts(throttleRetryBudget),
		retry.Context(j.ctx),
		retry.LastErrorOnly(true),
		// The shared pause is the delay; retry-go must not add its own.
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[gateway] request %s failed: %v", j.id, err)
	}
	j.result <- jobResult{data: data, err: err}
}

// startPause establishes the shared pause if none is active. It is cleared
// exactly once when the duration elapses; every caller awaits the same pause.
func (g *Gateway) startPause(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pause != nil {
		return
	}
	ch := make(chan struct{})
	g.pause = ch
	time.AfterFunc(d, func() {
		g.mu.Lock()
		g.pause = nil
		g.mu.Unlock()
		close(ch)
	})
}

func (g *Gateway) awaitPause(ctx context.Context) error {
	for {
		g.mu.Lock()
		ch := g.pause
		g.mu.Unlock()
		if ch == nil {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// takeToken removes one token from the reservoir, refilling lazily from
// elapsed intervals, and blocks until the next refill when exhausted.
func (g *Gateway) takeToken(ctx context.Context) error {
	for {
		g.mu.Lock()
		g.refillLocked()
		if g.tokens > 0 {
			g.tokens--
			g.mu.Unlock()
			return nil
		}
		wait := g.limits.RefillInterval - time.Since(g.lastRefill)
		g.mu.Unlock()
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

func (g *Gateway) refillLocked() {
	elapsed := time.Since(g.lastRefill)
	if elapsed < g.limits.RefillInterval {
		return
	}
	intervals := int(elapsed / g.limits.RefillInterval)
	g.tokens += intervals * g.limits.RefillAmount
	if g.tokens > g.limits.Reservoir {
		g.tokens = g.limits.Reservoir
	}
	g.lastRefill = g.lastRefill.Add(time.Duration(intervals) * g.limits.RefillInterval)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
