// Package scheduler fires sync cycles on the configured trigger and exposes
// a run-now escape hatch plus a status snapshot for the control API.
package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amtoaer/bili-sync-sub000/internal/bilibili"
	"github.com/amtoaer/bili-sync-sub000/internal/config"
	"github.com/amtoaer/bili-sync-sub000/internal/log"
	"github.com/amtoaer/bili-sync-sub000/internal/store"
)

// Runner is the unit of work a trigger fires. The pipeline satisfies it.
type Runner interface {
	RunCycle(ctx context.Context) error
}

// Status is the externally visible scheduler state.
type Status struct {
	Running    bool      `json:"running"`
	LastRunID  string    `json:"last_run_id,omitempty"`
	LastStart  time.Time `json:"last_start,omitzero"`
	LastFinish time.Time `json:"last_finish,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
	NextRun    time.Time `json:"next_run,omitzero"`
}

// Scheduler drives the cycle loop.
type Scheduler struct {
	runner Runner
	client *bilibili.Client
	store  *store.Store
	cfg    *config.Config
	logger zerolog.Logger

	runMu sync.Mutex // held across one cycle; TryLock backs run-now rejection
	wake  chan struct{}

	// cfg and cfgVersion are touched only from the Run goroutine
	cfgVersion int64

	mu          sync.Mutex
	snap        Status
	lastCredDay string
}

// New builds a scheduler over an already-validated config.
func New(runner Runner, client *bilibili.Client, st *store.Store, cfg *config.Config) *Scheduler {
	return &Scheduler{
		runner: runner,
		client: client,
		store:  st,
		cfg:    cfg,
		logger: log.WithComponent("scheduler"),
		wake:   make(chan struct{}, 1),
	}
}

// Status returns the current snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// TriggerNow requests an immediate cycle. It reports false when a cycle is
// already in flight.
func (s *Scheduler) TriggerNow() bool {
	s.mu.Lock()
	running := s.snap.Running
	s.mu.Unlock()
	if running {
		return false
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// reload picks up the stored config when its version moved, so trigger edits
// made through the store apply to the next fire time without a restart.
func (s *Scheduler) reload(ctx context.Context) {
	payload, version, err := s.store.LoadConfig(ctx)
	if err != nil {
		s.logger.Warn().Str("event", "config.reload_failed").Err(err).Msg("stored config unreadable")
		return
	}
	if version == 0 || version == s.cfgVersion {
		return
	}
	cfg, err := config.Parse(payload)
	if err != nil {
		s.logger.Warn().Str("event", "config.reload_failed").Err(err).Msg("stored config rejected")
		return
	}
	s.cfg = cfg
	s.cfgVersion = version
}

// Run loops until the context is cancelled. Each iteration waits for the
// trigger's next fire time or a run-now signal, whichever comes first.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.reload(ctx)
		next, err := s.cfg.Trigger.Next(time.Now())
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.snap.NextRun = next
		s.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		}
		s.runCycle(ctx)
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if !s.runMu.TryLock() {
		return
	}
	defer s.runMu.Unlock()

	runID := uuid.NewString()
	start := time.Now()
	s.mu.Lock()
	s.snap.Running = true
	s.snap.LastRunID = runID
	s.snap.LastStart = start
	s.snap.LastError = ""
	s.mu.Unlock()

	logger := s.logger.With().Str("run_id", runID).Logger()
	logger.Info().Str("event", "cycle.start").Msg("cycle started")

	s.housekeeping(ctx, logger)

	err := s.runner.RunCycle(ctx)
	finish := time.Now()

	s.mu.Lock()
	s.snap.Running = false
	s.snap.LastFinish = finish
	if err != nil {
		s.snap.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error().
			Str("event", "cycle.failed").
			Dur("elapsed", finish.Sub(start)).
			Err(err).
			Msg("cycle failed")
		return
	}
	logger.Info().
		Str("event", "cycle.done").
		Dur("elapsed", finish.Sub(start)).
		Msg("cycle finished")
}

// housekeeping refreshes the WBI mixin key every cycle and rotates the
// credential at most once per local calendar day, persisting a rotated
// credential back into the stored config.
func (s *Scheduler) housekeeping(ctx context.Context, logger zerolog.Logger) {
	if err := s.client.RefreshMixinKey(ctx); err != nil {
		logger.Warn().Str("event", "wbi.refresh_failed").Err(err).Msg("mixin key refresh failed")
	}

	today := time.Now().Local().Format("2006-01-02")
	s.mu.Lock()
	due := s.lastCredDay != today
	s.mu.Unlock()
	if !due || s.client.Credential().Empty() {
		return
	}

	// one attempt per day, successful or not; a failed refresh waits for
	// tomorrow instead of hammering the passport endpoint every cycle
	s.mu.Lock()
	s.lastCredDay = today
	s.mu.Unlock()

	cred, rotated, err := s.client.TryRefreshCredential(ctx)
	if err != nil {
		logger.Warn().Str("event", "credential.refresh_failed").Err(err).Msg("credential refresh failed")
		return
	}
	if !rotated {
		return
	}

	s.cfg.Credential = *cred
	payload, err := json.Marshal(s.cfg)
	if err != nil {
		logger.Error().Err(err).Msg("config marshal failed")
		return
	}
	version, err := s.store.SaveConfig(ctx, string(payload))
	if err != nil {
		logger.Error().Str("event", "credential.persist_failed").Err(err).Msg("rotated credential not persisted")
		return
	}
	s.cfgVersion = version
	logger.Info().Str("event", "credential.rotated").Msg("credential rotated and persisted")
}
