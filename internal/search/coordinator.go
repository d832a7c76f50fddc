// Package search runs search jobs on the daemon: it starts a job, polls it
// until the result count converges or the budget runs out, fetches and
// normalizes the results, and stops the job on every exit path.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	opAuth    = "auth"
	opStart   = "start"
	opPoll    = "poll"
	opFetch   = "fetch"
	opPlugins = "plugins"
)

// Coordinator owns the lifecycle of search jobs. At most one job is active
// per Coordinator; starting a search cancels and stops the previous one
// before the new job is started.
type Coordinator struct {
	transport Transport
	session   SessionProvider
	config    Config
	observer  Observer
	logger    zerolog.Logger

	// runMu is held for the whole lifetime of a job, stop included.
	runMu sync.Mutex

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelCauseFunc
	active *Job
}

// NewCoordinator creates a coordinator issuing requests through transport.
func NewCoordinator(transport Transport, session SessionProvider, cfg Config, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		transport: transport,
		session:   session,
		config:    cfg.withDefaults(),
		logger:    logger.With().Str("component", "search").Logger(),
	}
}

// SetObserver sets the observer receiving lifecycle events. It may be
// called while a search is running; later events go to the new observer.
func (c *Coordinator) SetObserver(observer Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = observer
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	return c.config
}

// Active returns a snapshot of the job currently owned by the coordinator.
func (c *Coordinator) Active() (Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Job{}, false
	}
	return *c.active, true
}

// Search runs a search with the configured wall-clock budget.
func (c *Coordinator) Search(ctx context.Context, query, category string) ([]Record, error) {
	return c.SearchWithBudget(ctx, query, category, 0)
}

// SearchWithBudget runs a search whose poll loop ends after budget, or after
// the configured number of polls, whichever comes first. A budget <= 0 uses
// the configured timeout.
//
// A timed-out search returns an error matching ErrJobTimedOut together with
// the partial records, which are also available through PartialRecords.
func (c *Coordinator) SearchWithBudget(ctx context.Context, query, category string, budget time.Duration) ([]Record, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &Error{Op: opStart, Kind: ErrInvalidQuery}
	}
	if category == "" {
		category = CategoryAll
	}
	if budget <= 0 {
		budget = c.config.Timeout
	}

	ticket := c.supersede()

	c.runMu.Lock()
	defer c.runMu.Unlock()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if !c.claim(ticket, cancel) {
		return nil, &Error{Op: opStart, Kind: ErrSuperseded}
	}
	defer c.release()

	return c.run(runCtx, query, category, budget)
}

// ListPlugins returns the search plugins installed on the daemon.
func (c *Coordinator) ListPlugins(ctx context.Context) ([]PluginDescriptor, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, &Error{Op: opPlugins, Kind: ErrAuth, Err: err}
	}

	var plugins []PluginDescriptor
	err = c.withSession(ctx, &token, func(token string) error {
		var err error
		plugins, err = c.transport.ListPlugins(ctx, token)
		return err
	})
	if err != nil {
		return nil, &Error{Op: opPlugins, Kind: classify(err), Err: err}
	}
	return plugins, nil
}

// supersede registers a new search and cancels the running one.
func (c *Coordinator) supersede() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.cancel != nil {
		c.cancel(ErrSuperseded)
	}
	return c.gen
}

// claim makes the caller the running search unless a newer search has
// been registered in the meantime.
func (c *Coordinator) claim(ticket uint64, cancel context.CancelCauseFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ticket != c.gen {
		return false
	}
	c.cancel = cancel
	return true
}

func (c *Coordinator) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel = nil
	c.active = nil
}

func (c *Coordinator) publish(job *Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := *job
	c.active = &snapshot
}

func (c *Coordinator) unpublish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = nil
}

func (c *Coordinator) run(ctx context.Context, query, category string, budget time.Duration) ([]Record, error) {
	logger := c.logger.With().
		Str("run", uuid.NewString()).
		Str("query", query).
		Str("category", category).
		Logger()

	token, err := c.token(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Op: opAuth, Err: context.Cause(ctx)}
		}
		logger.Warn().Err(err).Msg("No session available")
		return nil, &Error{Op: opAuth, Kind: ErrAuth, Err: err}
	}

	var jobID string
	err = c.withSession(ctx, &token, func(token string) error {
		var err error
		jobID, err = c.transport.StartSearch(ctx, token, StartRequest{
			Pattern:  query,
			Category: category,
			Plugins:  c.config.Plugins,
		})
		return err
	})
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, &Error{Op: opStart, Err: context.Cause(ctx)}
	case err != nil && errors.Is(err, ErrAuth):
		logger.Warn().Err(err).Msg("Search start rejected: not authenticated")
		return nil, &Error{Op: opStart, Kind: ErrAuth, Err: err}
	case err != nil:
		logger.Error().Err(err).Msg("Failed to start search job")
		return nil, &Error{Op: opStart, Kind: ErrJobStartFailed, Err: err}
	case jobID == "":
		logger.Error().Msg("Daemon returned an empty search job id")
		return nil, &Error{Op: opStart, Kind: ErrJobStartFailed, Err: fmt.Errorf("%w: empty job id", ErrProtocol)}
	}

	job := &Job{
		ID:        jobID,
		Query:     query,
		Category:  category,
		Status:    StatusStarted,
		StartedAt: time.Now(),
	}
	c.publish(job)
	logger = logger.With().Str("job", jobID).Logger()
	logger.Info().Dur("budget", budget).Int("maxPolls", c.config.MaxPolls).Msg("Search job started")
	c.emit(job, EventJobStarted, nil)

	defer c.stop(ctx, &token, job, logger)

	return c.poll(ctx, &token, job, budget, logger)
}

// poll drives the job until it finishes, converges, fails or runs out of budget.
func (c *Coordinator) poll(ctx context.Context, token *string, job *Job, budget time.Duration, logger zerolog.Logger) ([]Record, error) {
	loopCtx := ctx
	if budget > 0 {
		var cancel context.CancelFunc
		loopCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	for range c.config.MaxPolls {
		if err := sleep(loopCtx, c.config.PollInterval); err != nil {
			if ctx.Err() != nil {
				return nil, c.cancelled(ctx, job, logger)
			}
			break
		}

		var state JobState
		err := c.withSession(loopCtx, token, func(token string) error {
			var err error
			state, err = c.transport.SearchStatus(loopCtx, token, job.ID)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, c.cancelled(ctx, job, logger)
			}
			if loopCtx.Err() != nil {
				break
			}
			return nil, c.fail(job, opPoll, err, logger)
		}
		if state.Status == "" || state.Total < 0 {
			return nil, c.fail(job, opPoll, fmt.Errorf("%w: malformed status reading (status=%q total=%d)", ErrProtocol, state.Status, state.Total), logger)
		}

		job.Polls++
		job.Status = StatusPolling
		job.observe(state.Total)
		c.publish(job)
		logger.Debug().
			Str("status", state.Status).
			Int("total", state.Total).
			Int("stable", job.StableObservations).
			Int("poll", job.Polls).
			Msg("Polled search job")
		c.emit(job, EventPoll, nil)

		if state.Stopped() {
			if state.Total == 0 {
				logger.Info().Msg("Search job finished without results")
				return []Record{}, nil
			}
			return c.fetchOrFail(ctx, token, job, logger)
		}

		if job.StableObservations >= c.config.StabilityWindow {
			job.Status = StatusStabilizing
			c.publish(job)
			logger.Info().
				Int("total", job.LastObservedTotal).
				Int("stable", job.StableObservations).
				Msg("Result count converged, fetching early")
			c.emit(job, EventPlateau, nil)
			return c.fetchOrFail(ctx, token, job, logger)
		}
	}

	job.Status = StatusTimedOut
	c.publish(job)
	logger.Warn().
		Int("polls", job.Polls).
		Int("total", job.LastObservedTotal).
		Dur("elapsed", time.Since(job.StartedAt)).
		Msg("Search budget exhausted")
	c.emit(job, EventTimedOut, nil)

	records, err := c.fetch(ctx, token, job, logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil, c.cancelled(ctx, job, logger)
		}
		logger.Warn().Err(err).Msg("Failed to fetch partial results")
		records = nil
	}
	return records, &Error{Op: opPoll, JobID: job.ID, Kind: ErrJobTimedOut, Records: records}
}

func (c *Coordinator) fetchOrFail(ctx context.Context, token *string, job *Job, logger zerolog.Logger) ([]Record, error) {
	records, err := c.fetch(ctx, token, job, logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil, c.cancelled(ctx, job, logger)
		}
		return nil, c.fail(job, opFetch, err, logger)
	}
	return records, nil
}

func (c *Coordinator) fetch(ctx context.Context, token *string, job *Job, logger zerolog.Logger) ([]Record, error) {
	var page *ResultsPage
	err := c.withSession(ctx, token, func(token string) error {
		var err error
		page, err = c.transport.SearchResults(ctx, token, job.ID, c.config.ResultLimit)
		return err
	})
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("%w: empty results payload", ErrProtocol)
	}

	records := Normalize(page.Entries)
	logger.Info().
		Int("raw", len(page.Entries)).
		Int("records", len(records)).
		Int("dropped", len(page.Entries)-len(records)).
		Msg("Fetched search results")

	event := c.event(job, EventFetch, nil)
	event.Records = len(records)
	c.notify(event)
	return records, nil
}

// stop issues the single stop request for job. It runs on a context
// detached from the caller so that a cancelled search is still torn down.
func (c *Coordinator) stop(ctx context.Context, token *string, job *Job, logger zerolog.Logger) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.StopTimeout)
	defer cancel()

	if job.Status != StatusTimedOut && job.Status != StatusFailed {
		job.Status = StatusStopped
	}
	c.unpublish()

	if err := c.transport.StopSearch(stopCtx, *token, job.ID); err != nil {
		logger.Warn().Err(err).Msg("Failed to stop search job")
		c.emit(job, EventStopFailed, err)
		return
	}
	logger.Debug().
		Str("status", string(job.Status)).
		Int("polls", job.Polls).
		Msg("Search job stopped")
	c.emit(job, EventStopIssued, nil)
}

func (c *Coordinator) cancelled(ctx context.Context, job *Job, logger zerolog.Logger) error {
	cause := context.Cause(ctx)
	logger.Info().Err(cause).Int("polls", job.Polls).Msg("Search cancelled")
	c.emit(job, EventJobCancelled, cause)
	return &Error{Op: opPoll, JobID: job.ID, Err: cause}
}

func (c *Coordinator) fail(job *Job, op string, err error, logger zerolog.Logger) error {
	job.Status = StatusFailed
	c.publish(job)
	kind := classify(err)
	logger.Error().Err(err).Str("op", op).Msg("Search job failed")
	c.emit(job, EventJobFailed, err)
	return &Error{Op: op, JobID: job.ID, Kind: kind, Err: err}
}

// withSession runs step with the current token. If the daemon rejects the
// session, it re-authenticates once and retries step exactly once.
func (c *Coordinator) withSession(ctx context.Context, token *string, step func(token string) error) error {
	err := step(*token)
	if err == nil || !errors.Is(err, ErrAuth) {
		return err
	}

	c.session.Invalidate()
	fresh, authErr := c.session.Authenticate(ctx)
	if authErr != nil {
		return fmt.Errorf("%w: re-authentication failed: %w", ErrAuth, authErr)
	}
	*token = fresh
	c.logger.Info().Msg("Session re-authenticated")
	c.emit(nil, EventReauthenticated, nil)
	return step(fresh)
}

func (c *Coordinator) token(ctx context.Context) (string, error) {
	if token, ok := c.session.CurrentToken(); ok {
		return token, nil
	}
	return c.session.Authenticate(ctx)
}

func (c *Coordinator) event(job *Job, kind EventKind, err error) Event {
	event := Event{Kind: kind, Err: err, At: time.Now()}
	if job != nil {
		event.JobID = job.ID
		event.Query = job.Query
		event.Status = job.Status
		event.Total = job.LastObservedTotal
		event.Stable = job.StableObservations
	}
	return event
}

func (c *Coordinator) emit(job *Job, kind EventKind, err error) {
	c.notify(c.event(job, kind, err))
}

func (c *Coordinator) notify(event Event) {
	c.mu.Lock()
	observer := c.observer
	c.mu.Unlock()
	if observer != nil {
		observer.Observe(event)
	}
}

// EnabledFor returns the enabled plugins that handle category.
func EnabledFor(plugins []PluginDescriptor, category string) []PluginDescriptor {
	result := make([]PluginDescriptor, 0, len(plugins))
	for _, p := range plugins {
		if p.Enabled && p.Supports(category) {
			result = append(result, p)
		}
	}
	return result
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
