package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chesskite/chesskite-relay/internal/events"
	"github.com/chesskite/chesskite-relay/internal/intent"
	"github.com/chesskite/chesskite-relay/internal/txerr"
)

const (
	defaultProcessingInterval = time.Second
	defaultRetryBaseDelay     = 5 * time.Second
	defaultMaxRetries         = 3
	defaultActorScanLimit     = 100
	defaultGCInterval         = time.Hour
)

// intentProcessor runs one claimed intent attempt.
type intentProcessor interface {
	Process(ctx context.Context, it intent.Intent) error
}

// Leader gates periodic maintenance in multi-process deployments.
type Leader interface {
	Tick(ctx context.Context) (bool, error)
}

type Config struct {
	ProcessingInterval time.Duration
	RetryBaseDelay     time.Duration
	MaxRetries         int
	ActorScanLimit     int

	GCInterval time.Duration
	GCAge      time.Duration

	// ReclaimAfter, when > 0, resets Processing rows stuck longer than this
	// back to Pending on the maintenance tick.
	ReclaimAfter time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Dispatcher scans for actors with pending work and drains each actor's
// queue with at most one worker per actor. Workers for distinct actors run
// concurrently; a single actor's intents are strictly serialized.
type Dispatcher struct {
	cfg Config

	queue intent.Store
	proc  intentProcessor
	bus   events.Bus

	leader Leader

	log *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func New(cfg Config, queue intent.Store, proc intentProcessor, bus events.Bus, log *slog.Logger) (*Dispatcher, error) {
	if queue == nil || proc == nil || bus == nil {
		return nil, fmt.Errorf("%w: nil dependency", ErrInvalidConfig)
	}
	if cfg.ProcessingInterval <= 0 {
		cfg.ProcessingInterval = defaultProcessingInterval
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.ActorScanLimit <= 0 {
		cfg.ActorScanLimit = defaultActorScanLimit
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = defaultGCInterval
	}
	if cfg.GCAge <= 0 {
		cfg.GCAge = intent.DefaultGCAge
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Dispatcher{
		cfg:      cfg,
		queue:    queue,
		proc:     proc,
		bus:      bus,
		log:      log,
		inflight: make(map[string]struct{}),
	}, nil
}

// WithLeader gates maintenance ticks behind a lease-based elector so only
// one dispatcher process runs GC.
func (d *Dispatcher) WithLeader(l Leader) *Dispatcher {
	d.leader = l
	return d
}

// Run scans until ctx is cancelled, then waits for in-flight workers to
// finish their current intent before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	scan := time.NewTicker(d.cfg.ProcessingInterval)
	defer scan.Stop()
	gc := time.NewTicker(d.cfg.GCInterval)
	defer gc.Stop()

	d.log.Info("dispatcher started",
		"processingInterval", d.cfg.ProcessingInterval.String(),
		"maxRetries", d.cfg.MaxRetries,
		"retryBaseDelay", d.cfg.RetryBaseDelay.String(),
	)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopping", "reason", ctx.Err())
			d.wg.Wait()
			return nil
		case <-scan.C:
			d.Scan(ctx)
		case <-gc.C:
			d.Maintain(ctx)
		}
	}
}

// Scan performs one dispatch pass: list actors with pending work oldest
// first and spawn a worker for each actor not already in flight. Errors are
// logged; the next tick continues regardless.
func (d *Dispatcher) Scan(ctx context.Context) {
	actors, err := d.queue.ListActiveActors(ctx, d.cfg.ActorScanLimit)
	if err != nil {
		d.log.Error("list active actors", "err", err)
		return
	}

	for _, actor := range actors {
		if !d.tryAcquire(actor) {
			continue
		}
		d.wg.Add(1)
		go func(actor string) {
			defer d.wg.Done()
			defer d.release(actor)
			d.drainActor(ctx, actor)
		}(actor)
	}
}

// Wait blocks until every in-flight worker has exited. Used by tests and by
// callers that drive Scan directly.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Maintain runs the periodic GC and, when configured, reclaims rows stuck in
// Processing after a dispatcher crash. Skipped when another process holds
// leadership.
func (d *Dispatcher) Maintain(ctx context.Context) {
	if d.leader != nil {
		leader, err := d.leader.Tick(ctx)
		if err != nil {
			d.log.Error("leader election tick", "err", err)
			return
		}
		if !leader {
			return
		}
	}

	if n, err := d.queue.GCOld(ctx, d.cfg.GCAge); err != nil {
		d.log.Error("gc old rows", "err", err)
	} else if n > 0 {
		d.log.Info("gc removed rows", "count", n)
	}

	if d.cfg.ReclaimAfter > 0 {
		if n, err := d.queue.ReclaimStuck(ctx, d.cfg.ReclaimAfter); err != nil {
			d.log.Error("reclaim stuck rows", "err", err)
		} else if n > 0 {
			d.log.Warn("reclaimed stuck processing rows", "count", n)
		}
	}
}

func (d *Dispatcher) tryAcquire(actor string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.inflight[actor]; ok {
		return false
	}
	d.inflight[actor] = struct{}{}
	return true
}

func (d *Dispatcher) release(actor string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.inflight, actor)
}

// drainActor claims and processes the actor's pending intents in order until
// the queue is empty or the claim fails.
func (d *Dispatcher) drainActor(ctx context.Context, actor string) {
	for {
		it, ok, err := d.queue.ClaimNext(ctx, actor)
		if err != nil {
			d.log.Error("claim next", "actor", actor, "err", err)
			return
		}
		if !ok {
			return
		}

		d.emit(ctx, actor, events.EventProcessing, events.ProcessingPayload{
			ID:        it.ID,
			Status:    events.StatusProcessing,
			Timestamp: d.cfg.Now().UTC(),
		})

		procErr := d.proc.Process(ctx, it)
		if procErr == nil {
			if err := d.queue.MarkCompleted(ctx, it.ID); err != nil {
				d.log.Error("mark completed", "intent", it.ID, "err", err)
				return
			}
			// Completed rows are not retained.
			if err := d.queue.Delete(ctx, it.ID); err != nil {
				d.log.Error("delete completed", "intent", it.ID, "err", err)
			}
			continue
		}

		d.log.Warn("intent attempt failed",
			"intent", it.ID,
			"actor", actor,
			"kind", it.Kind,
			"class", txerr.Classify(procErr).String(),
			"err", procErr,
		)
		if txerr.Classify(procErr) == txerr.ClassAuthorization {
			d.log.Error("badge mint rejected: sponsor address is not the registry's authorized minter; repair with relay-admin set-authorized-minter", "intent", it.ID)
		}

		retries, err := d.queue.IncrementRetries(ctx, it.ID)
		if err != nil {
			d.log.Error("increment retries", "intent", it.ID, "err", err)
			return
		}

		if retries >= d.cfg.MaxRetries {
			if err := d.queue.MarkFailed(ctx, it.ID, procErr.Error()); err != nil {
				d.log.Error("mark failed", "intent", it.ID, "err", err)
			}
			if !txerr.Suppressed(it.Kind, procErr) {
				d.emit(ctx, actor, events.EventResult, events.ResultPayload{
					ID:        it.ID,
					Status:    events.StatusError,
					Error:     procErr.Error(),
					Timestamp: d.cfg.Now().UTC(),
				})
			}
			// Failed MintBadge rows are retained as a paper trail.
			if it.Kind != intent.KindMintBadge {
				if err := d.queue.Delete(ctx, it.ID); err != nil {
					d.log.Error("delete failed", "intent", it.ID, "err", err)
				}
			}
			continue
		}

		if err := d.queue.RequeuePending(ctx, it.ID, procErr.Error()); err != nil {
			d.log.Error("requeue pending", "intent", it.ID, "err", err)
			return
		}
		delay := txerr.RetryBase(it.Kind, procErr, d.cfg.RetryBaseDelay) * time.Duration(retries)
		if err := d.cfg.Sleep(ctx, delay); err != nil {
			return
		}
	}
}

func (d *Dispatcher) emit(ctx context.Context, actor, event string, payload any) {
	if actor == "" {
		return
	}
	if err := d.bus.Emit(ctx, events.Room(actor), event, payload); err != nil {
		d.log.Error("emit event", "event", event, "actor", actor, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
