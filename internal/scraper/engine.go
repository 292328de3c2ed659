package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jedeschule/schulsync/internal/fetcher"
	"github.com/jedeschule/schulsync/internal/model"
)

// OnError selects the batch failure policy.
type OnError int

const (
	// SkipOnError records a failed state and continues with the rest.
	SkipOnError OnError = iota
	// RaiseOnError propagates the first state-level failure and cancels
	// in-flight states.
	RaiseOnError
)

// ParseOnError converts the CLI flag value into an OnError policy.
func ParseOnError(s string) (OnError, error) {
	switch s {
	case "", "skip":
		return SkipOnError, nil
	case "raise":
		return RaiseOnError, nil
	default:
		return 0, eris.Errorf("unknown on-error policy %q (valid: skip, raise)", s)
	}
}

// RunOpts configures a batch run.
type RunOpts struct {
	// States restricts the run to the given keys. Empty means all registered
	// states in registration order.
	States []string

	// OnError selects skip (default) or raise behavior for state failures.
	OnError OnError

	// Concurrency bounds how many states run at once. Zero or one reproduces
	// the strictly-sequential reference behavior. States target different
	// hosts, so per-host politeness is unaffected by running them in parallel.
	Concurrency int
}

// Report aggregates the outcome of a batch run.
type Report struct {
	Schools   []model.School
	Failed    map[string]string // state key -> error description
	Unknown   []string          // requested keys not in the registry
	Requested int
	Succeeded int
	Elapsed   time.Duration
}

// Engine runs one or many state scrapers with per-state fault isolation.
type Engine struct {
	reg *Registry
	f   fetcher.Fetcher
}

// NewEngine creates an engine over the given registry and transport.
func NewEngine(reg *Registry, f fetcher.Fetcher) *Engine {
	return &Engine{reg: reg, f: f}
}

// ScrapeState runs exactly one state's scraper. Unknown keys and scraper
// failures propagate to the caller unmodified.
func (e *Engine) ScrapeState(ctx context.Context, key string) ([]model.School, error) {
	s, err := e.reg.Get(key)
	if err != nil {
		return nil, err
	}
	return s.Scrape(ctx, e.f)
}

// ScrapeAll runs the requested states (default: all). In skip mode it always
// returns a report, even if every state fails; in raise mode the first state
// failure cancels the remaining work and is returned instead.
func (e *Engine) ScrapeAll(ctx context.Context, opts RunOpts) (*Report, error) {
	log := zap.L().With(zap.String("component", "scraper.engine"))
	start := time.Now()

	targets, unknown := e.resolve(opts.States, log)

	report := &Report{
		Failed:    make(map[string]string),
		Unknown:   unknown,
		Requested: len(targets),
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	// Results land in per-state slots so concurrent states never interleave
	// and the output keeps the requested order.
	slots := make([][]model.School, len(targets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, s := range targets {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			sLog := log.With(zap.String("state", s.Key()))
			sLog.Info("scraping state")
			stateStart := time.Now()

			schools, err := s.Scrape(gctx, e.f)
			elapsed := time.Since(stateStart)

			if err != nil {
				sLog.Error("state failed",
					zap.Duration("elapsed", elapsed),
					zap.Error(err),
				)
				if opts.OnError == RaiseOnError {
					return eris.Wrapf(err, "state %s", s.Key())
				}
				mu.Lock()
				report.Failed[s.Key()] = err.Error()
				mu.Unlock()
				return nil
			}

			sLog.Info("state complete",
				zap.Int("schools", len(schools)),
				zap.Duration("elapsed", elapsed),
			)
			slots[i] = schools
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, schools := range slots {
		report.Schools = append(report.Schools, schools...)
	}
	report.Succeeded = report.Requested - len(report.Failed)
	report.Elapsed = time.Since(start)

	summary := log.With(
		zap.Int("schools", len(report.Schools)),
		zap.Int("states_ok", report.Succeeded),
		zap.Int("states_failed", len(report.Failed)),
		zap.Duration("elapsed", report.Elapsed),
	)
	if len(report.Failed) > 0 {
		summary.Warn("scrape finished with failures", zap.Any("failed", report.Failed))
	} else {
		summary.Info("scrape finished")
	}

	return report, nil
}

// resolve maps requested keys to scrapers, reporting unknown keys without
// failing the batch.
func (e *Engine) resolve(keys []string, log *zap.Logger) ([]StateScraper, []string) {
	if len(keys) == 0 {
		return e.reg.All(), nil
	}

	var targets []StateScraper
	var unknown []string
	for _, key := range keys {
		s, err := e.reg.Get(key)
		if err != nil {
			log.Warn("unknown state, skipping", zap.String("state", key))
			unknown = append(unknown, key)
			continue
		}
		targets = append(targets, s)
	}
	return targets, unknown
}
