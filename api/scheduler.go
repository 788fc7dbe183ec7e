/*
scheduler.go - Automated daily collection scheduler

PURPOSE:
  Drives the collection engine from wall-clock time so nobody has to call
  POST /api/collection/run-day by hand.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Generates the ledger once per period (first tick that sees it)
  - Runs the waterfall once per calendar date, after RunHour (UTC)
  - Skips collection on a tick where ledger generation failed
  - A persistence failure leaves the date unmarked so the next tick retries;
    reruns are safe because actions are idempotent

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - RunHour: Hour of day after which the run happens (default: 9)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewCollectionScheduler(handler, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunCollectionDay endpoint (manual run)
  - collection/engine.go: Engine
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/rent-engine/collection"
)

// CollectionScheduler runs ledger generation and the daily waterfall.
type CollectionScheduler struct {
	Generator     *collection.Generator
	Engine        *collection.Engine
	Clock         collection.Clock
	CheckInterval time.Duration
	RunHour       int
	Enabled       bool
	Log           zerolog.Logger

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	// guarded by mu
	lastGenerated collection.Period
	lastRunDate   string
}

// NewCollectionScheduler creates a scheduler over the handler's components.
func NewCollectionScheduler(h *Handler, log zerolog.Logger) *CollectionScheduler {
	return &CollectionScheduler{
		Generator:     h.Generator,
		Engine:        h.Engine,
		Clock:         h.Clock,
		CheckInterval: 1 * time.Hour,
		RunHour:       9,
		Enabled:       true,
		Log:           log.With().Str("component", "scheduler").Logger(),
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (cs *CollectionScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		cs.Log.Info().Msg("disabled, not starting")
		return
	}
	if cs.ticker != nil {
		return
	}

	cs.ticker = time.NewTicker(cs.CheckInterval)
	cs.wg.Add(1)
	go cs.run(cs.ticker)

	cs.Log.Info().Dur("interval", cs.CheckInterval).Int("run_hour", cs.RunHour).Msg("started")
}

// Stop stops the scheduler and waits for an in-flight check.
func (cs *CollectionScheduler) Stop() {
	cs.mu.Lock()
	ticker := cs.ticker
	cs.ticker = nil
	cs.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	close(cs.stop)
	cs.wg.Wait()
	cs.Log.Info().Msg("stopped")
}

func (cs *CollectionScheduler) run(ticker *time.Ticker) {
	defer cs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-cs.stop
		cancel()
	}()

	// Run immediately on start
	cs.check(ctx, false)

	for {
		select {
		case <-ticker.C:
			cs.check(ctx, false)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow generates the ledger and runs today's waterfall regardless of the
// hour or of earlier runs.
func (cs *CollectionScheduler) RunNow(ctx context.Context) (collection.DayResult, error) {
	return cs.check(ctx, true)
}

func (cs *CollectionScheduler) check(ctx context.Context, force bool) (collection.DayResult, error) {
	now := cs.Clock.Now().UTC()
	tick := collection.TickAt(now)
	date := now.Format("2006-01-02")

	cs.mu.Lock()
	needLedger := force || cs.lastGenerated != tick.Period
	needRun := force || (cs.lastRunDate != date && now.Hour() >= cs.RunHour)
	cs.mu.Unlock()

	if needLedger {
		res, err := cs.Generator.GenerateMonthlyLedger(ctx, tick.Period.Month, tick.Period.Year)
		if err != nil {
			cs.Log.Error().Err(err).Str("period", tick.Period.String()).Msg("ledger generation failed")
			return collection.DayResult{}, err
		}
		cs.mu.Lock()
		cs.lastGenerated = tick.Period
		cs.mu.Unlock()
		if res.Created > 0 {
			cs.Log.Info().Int("created", res.Created).Int("skipped", res.Skipped).
				Str("period", tick.Period.String()).Msg("ledger generated")
		}
	}

	if !needRun {
		return collection.DayResult{}, nil
	}

	res, err := cs.Engine.RunCollectionDay(ctx, tick.Day, tick.Period.Month, tick.Period.Year)
	if shouldRetry(err) {
		// leave the date unmarked; the next tick retries
		cs.Log.Error().Err(err).Str("date", date).Msg("collection run failed")
		return res, err
	}

	cs.mu.Lock()
	cs.lastRunDate = date
	cs.mu.Unlock()

	if err != nil {
		cs.Log.Warn().Err(err).Str("date", date).Msg("collection run rejected")
		return res, err
	}
	cs.Log.Info().Str("date", date).Int("sent", res.TotalSent()).Msg("collection run complete")
	return res, nil
}

// shouldRetry reports whether a failed run leaves the date open. A run
// that hit any persistence failure is retried even when other tenants
// failed with client errors.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	return collection.IsRetryable(err) || !collection.IsClientError(err)
}
