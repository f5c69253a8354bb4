// Package schedule runs goals on cron expressions. Every trigger is an
// independent session; a trigger that fires while the previous run of the
// same entry is still going is skipped.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/petasbytes/toolloop/internal/runner"
	"github.com/petasbytes/toolloop/internal/session"
)

// Runner is the part of runner.Runner the scheduler drives.
type Runner interface {
	Run(ctx context.Context, goal string) (*runner.Result, error)
}

// Outcome describes one triggered run.
type Outcome struct {
	Entry      cron.EntryID
	Goal       string
	SessionID  string
	State      session.State
	FinalText  string
	Iterations int
	Started    time.Time
	Duration   time.Duration
	Err        error
}

type Option func(*Scheduler)

func WithLogger(l zerolog.Logger) Option { return func(s *Scheduler) { s.log = l } }

func WithLocation(loc *time.Location) Option { return func(s *Scheduler) { s.loc = loc } }

// WithOutcome registers a callback invoked after every triggered run.
func WithOutcome(fn func(Outcome)) Option { return func(s *Scheduler) { s.onOutcome = fn } }

type Scheduler struct {
	run       Runner
	log       zerolog.Logger
	loc       *time.Location
	onOutcome func(Outcome)
	cron      *cron.Cron

	mu  sync.RWMutex
	ctx context.Context
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse accepts standard five-field expressions and @descriptors such as @hourly.
func Parse(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

func New(r Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		run: r,
		log: zerolog.Nop(),
		loc: time.Local,
	}
	for _, o := range opts {
		o(s)
	}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	return s
}

// Add schedules goal on expr.
func (s *Scheduler) Add(expr, goal string) (cron.EntryID, error) {
	sched, err := Parse(expr)
	if err != nil {
		return 0, err
	}
	var id cron.EntryID
	id = s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(id, goal) }))
	s.log.Info().Int("entry", int(id)).Str("expr", expr).Time("next", sched.Next(time.Now().In(s.loc))).Msg("scheduled goal")
	return id, nil
}

// Entries lists the scheduled entries.
func (s *Scheduler) Entries() []cron.Entry { return s.cron.Entries() }

// Start runs the scheduler until ctx is cancelled, then waits for in-flight
// runs to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info().Int("entries", len(s.cron.Entries())).Msg("scheduler started")

	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Scheduler) fire(id cron.EntryID, goal string) {
	ctx := s.baseContext()
	if ctx.Err() != nil {
		return
	}
	o := Outcome{Entry: id, Goal: goal, Started: time.Now()}
	res, err := s.run.Run(ctx, goal)
	o.Duration = time.Since(o.Started)
	o.Err = err
	if res != nil {
		o.SessionID = res.SessionID
		o.State = res.Outcome
		o.FinalText = res.FinalText
		o.Iterations = res.Iterations
	}

	ev := s.log.Info()
	if err != nil {
		ev = s.log.Error().Err(err)
	}
	ev.Int("entry", int(id)).
		Str("session_id", o.SessionID).
		Str("outcome", string(o.State)).
		Int("iterations", o.Iterations).
		Dur("duration", o.Duration).
		Msg("scheduled run finished")

	if s.onOutcome != nil {
		s.onOutcome(o)
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug().Fields(kv).Msg("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error().Err(err).Fields(kv).Msg("cron: " + msg)
}
