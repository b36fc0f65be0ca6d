package bundle

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/pageforge/docserve/internal/cryptoutil"
	"github.com/pageforge/docserve/internal/log"
	"github.com/pageforge/docserve/internal/provider"
	"github.com/pageforge/docserve/internal/router"
)

const (
	// DefaultPollInterval is how often the watcher checks for a new release.
	DefaultPollInterval = 30 * time.Second

	// maxBackoff caps exponential backoff on consecutive release-poll errors.
	maxBackoff = 5 * time.Minute
)

// pollResult describes what happened during a single poll cycle.
type pollResult int

const (
	pollNoChange        pollResult = iota // release hash matches current - nothing to do
	pollSwapped                           // new hash detected, bundle loaded and swapped
	pollPtrError                          // release-pointer fetch failed - caller should back off
	pollLoadError                         // pointer fetch succeeded but download/extract failed
	pollValidationError                   // bundle extracted but failed sanity checks
)

// ReleaseFetcher is the interface the Watcher needs from a Loader.
// Extracted to decouple the Watcher from the concrete *Loader type,
// enabling simpler test doubles.
type ReleaseFetcher interface {
	CurrentRelease(ctx context.Context) (Release, error)
	Load(ctx context.Context, rel Release) (*provider.MemProvider, error)
}

// Installer receives extracted bundles keyed by descriptor. Satisfied
// by *registry.Registry; kept as an interface so the registry package
// can depend on Descriptor without a cycle.
type Installer interface {
	Register(desc Descriptor, p provider.Provider) error
}

// WatcherMetrics is implemented by the metrics package to observe watcher behavior.
type WatcherMetrics interface {
	IncWatcherPolls()
	IncWatcherSwaps()
	IncWatcherError(errType string)
	ObserveBundleLoadDuration(seconds float64)
	SetWatcherLastSuccess(unixSeconds float64)
	SetWatcherStale(stale bool)
}

// WatcherOptions configures the bundle release watcher.
type WatcherOptions struct {
	Logger       log.Logger
	Loader       ReleaseFetcher
	Registry     Installer
	Router       *router.Router
	PollInterval time.Duration

	// MountPrefix is the router sub-path the bundle's files are served
	// under. Empty mounts the bundle at the root.
	MountPrefix string

	// OnSwap is called after a successful bundle swap.
	// Called synchronously on the poll goroutine.
	OnSwap func(bundleID, hash string)

	// Metrics receives watcher observability signals (polls, swaps, errors, durations).
	Metrics WatcherMetrics

	// Validation configures the pre-swap bundle sanity checks. The
	// zero value still requires a non-empty index.html.
	Validation ValidationOptions

	// StaleThreshold is how long since the last successful release poll
	// before the watcher logs a staleness warning. Zero defaults to 30 minutes.
	StaleThreshold time.Duration
}

// Watcher polls for new releases and hot-swaps bundles into the
// registry and router.
type Watcher struct {
	loader      ReleaseFetcher
	registry    Installer
	router      *router.Router
	logger      log.Logger
	interval    time.Duration
	mountPrefix string
	onSwap      func(bundleID, hash string)
	metrics     WatcherMetrics
	validation  ValidationOptions

	// hash tracking for change detection
	currentHash string

	// backoff state
	consecutiveErrs int

	// staleness tracking
	staleThreshold time.Duration
	lastSuccessAt  time.Time
	lastOK         atomic.Int64
	staleLogged    bool

	pollCount int64
	swapCount int64
}

// NewWatcher creates a bundle watcher. Call Run to start the poll loop.
func NewWatcher(opts *WatcherOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	staleThreshold := opts.StaleThreshold
	if staleThreshold <= 0 {
		staleThreshold = 30 * time.Minute
	}

	w := &Watcher{
		loader:         opts.Loader,
		registry:       opts.Registry,
		router:         opts.Router,
		logger:         opts.Logger,
		interval:       interval,
		mountPrefix:    opts.MountPrefix,
		onSwap:         opts.OnSwap,
		metrics:        opts.Metrics,
		validation:     opts.Validation,
		staleThreshold: staleThreshold,
		lastSuccessAt:  time.Now(),
	}
	w.lastOK.Store(w.lastSuccessAt.Unix())
	return w
}

// LastSuccess exposes the unix time of the last successful release
// poll for readiness probes.
func (w *Watcher) LastSuccess() *atomic.Int64 { return &w.lastOK }

// LoadInitial performs a blocking first load so the server starts with
// content. It seeds the change-detection hash so the first poll does
// not re-download what is already live.
func (w *Watcher) LoadInitial(ctx context.Context) error {
	rel, err := w.loader.CurrentRelease(ctx)
	if err != nil {
		return err
	}
	p, err := w.loader.Load(ctx, rel)
	if err != nil {
		return err
	}
	if err := ValidateBundle(ctx, p, w.validation); err != nil {
		return err
	}
	if err := w.install(rel, p); err != nil {
		return err
	}
	w.currentHash = rel.Hash
	w.logger.Info(ctx, "initial bundle loaded",
		"bundle", rel.Descriptor.Identifier,
		"hash", truncHash(rel.Hash),
		"files", p.Len(),
	)
	w.fireOnSwap(ctx, rel)
	return nil
}

// Run starts the poll loop. Blocks until ctx is cancelled.
// Intended to be launched as: go watcher.Run(ctx)
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "bundle watcher starting",
		"poll_interval", w.interval.String(),
		"current_hash", truncHash(w.currentHash),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "bundle watcher stopping",
				"reason", ctx.Err(),
				"polls", w.pollCount,
				"swaps", w.swapCount,
			)
			return ctx.Err()
		case <-ticker.C:
			result := w.checkOnce(ctx)

			if result == pollPtrError {
				w.consecutiveErrs++
				backoff := w.backoffDuration()
				w.logger.Warn(ctx, "bundle watcher: backing off",
					"consecutive_errors", w.consecutiveErrs,
					"next_poll_in", backoff.String(),
				)
				ticker.Reset(backoff)
			} else if w.consecutiveErrs > 0 {
				// recovered from error streak - resume normal cadence
				w.logger.Info(ctx, "bundle watcher: recovered, resuming normal interval",
					"had_consecutive_errors", w.consecutiveErrs,
				)
				w.consecutiveErrs = 0
				ticker.Reset(w.interval)
			}

			// staleness detection: emit structured error once on transition into stale state
			if result != pollPtrError {
				if w.staleLogged {
					w.logger.Info(ctx, "bundle watcher: staleness recovered")
					w.staleLogged = false
					if w.metrics != nil {
						w.metrics.SetWatcherStale(false)
					}
				}
			} else if time.Since(w.lastSuccessAt) > w.staleThreshold {
				if !w.staleLogged {
					w.logger.Error(ctx, fmt.Errorf("last successful release poll was %s ago", time.Since(w.lastSuccessAt).Truncate(time.Second)),
						"bundle watcher: content is stale, unable to verify freshness",
					)
					w.staleLogged = true
					if w.metrics != nil {
						w.metrics.SetWatcherStale(true)
					}
				}
			}
		}
	}
}

// checkOnce performs a single poll-compare-swap cycle.
// Returns what happened so Run can adjust timing.
func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	w.pollCount++
	if w.metrics != nil {
		w.metrics.IncWatcherPolls()
	}

	rel, err := w.loader.CurrentRelease(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "bundle watcher: release poll failed")
		if w.metrics != nil {
			w.metrics.IncWatcherError("pointer")
		}
		return pollPtrError
	}

	// pointer fetch succeeded - update last success time
	now := time.Now()
	w.lastSuccessAt = now
	w.lastOK.Store(now.Unix())
	if w.metrics != nil {
		w.metrics.SetWatcherLastSuccess(float64(now.Unix()))
	}

	// no change - most common path
	if cryptoutil.HashEqual(rel.Hash, w.currentHash) {
		return pollNoChange
	}

	w.logger.Info(ctx, "bundle watcher: new release detected",
		"bundle", rel.Descriptor.Identifier,
		"old_hash", truncHash(w.currentHash),
		"new_hash", truncHash(rel.Hash),
	)

	loadStart := time.Now()
	p, err := w.loader.Load(ctx, rel)
	loadDur := time.Since(loadStart).Seconds()
	if w.metrics != nil {
		w.metrics.ObserveBundleLoadDuration(loadDur)
	}

	if err != nil {
		w.logger.Error(ctx, err, "bundle watcher: failed to load bundle",
			"hash", truncHash(rel.Hash),
		)
		if w.metrics != nil {
			w.metrics.IncWatcherError("load")
		}
		return pollLoadError
	}

	// sanity-check the extracted bundle before it touches live state
	if err := ValidateBundle(ctx, p, w.validation); err != nil {
		w.logger.Error(ctx, err, "bundle watcher: new bundle failed validation, keeping current content",
			"rejected_hash", truncHash(rel.Hash),
			"current_hash", truncHash(w.currentHash),
		)
		if w.metrics != nil {
			w.metrics.IncWatcherError("validation")
		}
		return pollValidationError
	}

	if err := w.install(rel, p); err != nil {
		w.logger.Error(ctx, err, "bundle watcher: failed to install bundle, keeping current content",
			"rejected_hash", truncHash(rel.Hash),
			"current_hash", truncHash(w.currentHash),
		)
		if w.metrics != nil {
			w.metrics.IncWatcherError("install")
		}
		return pollLoadError
	}

	oldHash := w.currentHash
	w.currentHash = rel.Hash
	w.swapCount++

	w.logger.Info(ctx, "bundle watcher: bundle swapped",
		"bundle", rel.Descriptor.Identifier,
		"old_hash", truncHash(oldHash),
		"new_hash", truncHash(rel.Hash),
		"total_swaps", w.swapCount,
	)

	if w.metrics != nil {
		w.metrics.IncWatcherSwaps()
	}

	w.fireOnSwap(ctx, rel)

	return pollSwapped
}

func (w *Watcher) fireOnSwap(ctx context.Context, rel Release) {
	if w.onSwap == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error(ctx, fmt.Errorf("OnSwap panic: %v", r),
				"bundle watcher: OnSwap callback panicked, continuing",
				"hash", truncHash(rel.Hash),
			)
		}
	}()
	w.onSwap(rel.Descriptor.Identifier, rel.Hash)
}

// install makes the extracted bundle live. Old snapshots are
// garbage-collected once the registry and router swap their maps.
func (w *Watcher) install(rel Release, p *provider.MemProvider) error {
	if w.registry != nil {
		if err := w.registry.Register(rel.Descriptor, p); err != nil {
			return err
		}
	}
	if w.router != nil {
		mount := w.mountPrefix
		if mount == "" {
			mount = "/"
		}
		if err := w.router.Register(p, mount); err != nil {
			return err
		}
	}
	return nil
}

// backoffDuration computes exponential backoff capped at maxBackoff.
// consecutiveErrs=1 → 2x interval, =2 → 4x, =3 → 8x, etc.
func (w *Watcher) backoffDuration() time.Duration {
	mult := math.Pow(2, float64(w.consecutiveErrs))
	d := time.Duration(float64(w.interval) * mult)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// truncHash returns the first 12 characters of a hash for logging.
func truncHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
