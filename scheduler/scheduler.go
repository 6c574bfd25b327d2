// Package scheduler runs the DPC's periodic tasks cooperatively on
// independent goroutines, each on its own ticker, and provides a small
// helper for status logging that only repeats when the status changes or a
// minimum interval has elapsed (§5: "a single cooperative scheduler runs
// periodic tasks").
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Task is one periodic unit of work. Fn is called once per Period with the
// tick's timestamp; it must return promptly (§5: "no task blocks longer
// than the longest single bus transaction").
type Task struct {
	Name   string
	Period time.Duration
	Fn     func(now time.Time)
}

// Scheduler owns a set of registered tasks and launches one goroutine per
// task when Run is called.
type Scheduler struct {
	logger *slog.Logger
	tasks  []Task
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger.With("component", "scheduler")}
}

// Register adds a task. It must be called before Run.
func (s *Scheduler) Register(task Task) {
	s.tasks = append(s.tasks, task)
}

// Run launches every registered task and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	done := make(chan struct{}, len(s.tasks))

	for _, task := range s.tasks {
		go s.runTask(ctx, task, done)
	}

	for range s.tasks {
		<-done
	}
}

func (s *Scheduler) runTask(ctx context.Context, task Task, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	ticker := time.NewTicker(task.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.runOnce(task, now)
		}
	}
}

func (s *Scheduler) runOnce(task Task, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", "task", task.Name, "recovered", r)
		}
	}()
	task.Fn(now)
}

// SendIfNonBlocking attempts to send val on ch, logging and dropping it
// instead of blocking the caller if the channel is full.
func SendIfNonBlocking[V any](logger *slog.Logger, ch chan<- V, val V, target string) {
	select {
	case ch <- val:
	default:
		logger.Warn("dropped message", "target", target)
	}
}

// StatusAnnouncer logs a status value only when it changes, or after
// repeatInterval has elapsed since the last time the same status was
// logged, mirroring the "announceStatus" throttling used by the limiter
// and zero-export regulator so a steady-state status isn't silent forever
// but also doesn't spam every tick.
type StatusAnnouncer[S comparable] struct {
	logger          *slog.Logger
	repeatInterval  time.Duration
	last            S
	haveLast        bool
	lastAnnouncedAt time.Time
}

func NewStatusAnnouncer[S comparable](logger *slog.Logger, repeatInterval time.Duration) *StatusAnnouncer[S] {
	return &StatusAnnouncer[S]{logger: logger, repeatInterval: repeatInterval}
}

// Announce logs the status via msg/args if it differs from the last
// announced status, or if repeatInterval has elapsed since the last
// announcement of the same status.
func (a *StatusAnnouncer[S]) Announce(now time.Time, status S, msg string, args ...any) {
	changed := !a.haveLast || status != a.last
	due := !a.haveLast || now.Sub(a.lastAnnouncedAt) >= a.repeatInterval

	if !changed && !due {
		return
	}

	a.logger.Info(msg, args...)
	a.last = status
	a.haveLast = true
	a.lastAnnouncedAt = now
}
