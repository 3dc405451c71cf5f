package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status represents the current state of a supervised session.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusWaiting  Status = "waiting"
	StatusFailed   Status = "failed"
)

// ErrMaxRestarts is returned by Run once MaxRestartAttempts is exhausted.
var ErrMaxRestarts = errors.New("supervisor: max restart attempts reached")

// ErrAlreadyRunning is returned by a second concurrent Run.
var ErrAlreadyRunning = errors.New("supervisor: already running")

// RunFunc runs one session. It should block until the session ends and
// return nil only when it ended on purpose.
type RunFunc func(ctx context.Context) error

// Config holds configuration for a supervised session.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// RestartOnFailure enables running the session again after a failure.
	RestartOnFailure bool

	// RestartDelay is the wait before the first restart. Each consecutive
	// failure doubles it.
	RestartDelay time.Duration

	// MaxRestartDelay caps the doubled delay.
	MaxRestartDelay time.Duration

	// StableThreshold is how long a session must run before its failure
	// counts as the first one again.
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restart attempts. 0 means unlimited.
	MaxRestartAttempts int

	// OnStop is called when a session ends, with nil for a deliberate stop.
	OnStop func(err error)

	// OnRestart is called before each restart attempt.
	OnRestart func(attempt int, delay time.Duration)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:               name,
		RestartOnFailure:   true,
		RestartDelay:       5 * time.Second,
		MaxRestartDelay:    5 * time.Minute,
		StableThreshold:    2 * time.Minute,
		MaxRestartAttempts: 10,
	}
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor runs a session function and restarts it on failure.
type Supervisor struct {
	config Config
	run    RunFunc
	logger Logger

	mu           sync.RWMutex
	running      bool
	status       Status
	restartCount int
	lastError    error
	startTime    time.Time
}

// New creates a supervisor for run.
func New(cfg Config, run RunFunc) *Supervisor {
	// Apply defaults for zero values
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = 5 * time.Minute
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = cfg.RestartDelay
	}
	if cfg.StableThreshold == 0 {
		cfg.StableThreshold = 2 * time.Minute
	}

	return &Supervisor{
		config: cfg,
		run:    run,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Run starts the session and keeps restarting it until ctx ends, the
// session ends cleanly, restarts are disabled or attempts run out.
//
// Returns:
//   - nil when ctx ends or the session returns nil
//   - the session error when RestartOnFailure is false
//   - an error wrapping ErrMaxRestarts and the last session error
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.config.Name)
	}
	s.running = true
	s.restartCount = 0
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		s.setStatus(StatusStarting)
		s.mu.Lock()
		s.startTime = time.Now()
		s.mu.Unlock()

		s.logger.Info("starting session", "name", s.config.Name)
		s.setStatus(StatusRunning)

		err := s.run(ctx)
		uptime := s.uptime()

		if ctx.Err() != nil || err == nil {
			s.logger.Info("session stopped", "name", s.config.Name)
			s.setStatus(StatusStopped)
			if s.config.OnStop != nil {
				s.config.OnStop(nil)
			}
			return nil
		}

		s.logger.Warn("session ended unexpectedly",
			"name", s.config.Name,
			"error", err,
			"uptime", uptime,
		)

		s.mu.Lock()
		s.lastError = err
		s.status = StatusFailed
		if uptime >= s.config.StableThreshold {
			s.restartCount = 0
		}
		attempt := s.restartCount + 1
		s.mu.Unlock()

		if s.config.OnStop != nil {
			s.config.OnStop(err)
		}

		// Check if we should restart
		if !s.config.RestartOnFailure {
			s.logger.Info("restart disabled, not restarting", "name", s.config.Name)
			return err
		}
		if s.config.MaxRestartAttempts > 0 && attempt > s.config.MaxRestartAttempts {
			s.logger.Error("max restart attempts reached",
				"name", s.config.Name,
				"attempts", attempt-1,
			)
			return fmt.Errorf("%w: %s: %w", ErrMaxRestarts, s.config.Name, err)
		}

		s.mu.Lock()
		s.restartCount = attempt
		s.status = StatusWaiting
		s.mu.Unlock()

		delay := s.Backoff(attempt)
		s.logger.Info("restarting session",
			"name", s.config.Name,
			"attempt", attempt,
			"delay", delay,
		)
		if s.config.OnRestart != nil {
			s.config.OnRestart(attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("context cancelled, not restarting", "name", s.config.Name)
			s.setStatus(StatusStopped)
			return nil
		case <-timer.C:
		}
	}
}

// Backoff returns the delay before restart attempt n (1-based): RestartDelay
// doubled per earlier attempt, capped at MaxRestartDelay.
func (s *Supervisor) Backoff(attempt int) time.Duration {
	delay := s.config.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.config.MaxRestartDelay {
			return s.config.MaxRestartDelay
		}
	}
	return delay
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Status returns the current status of the session.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Supervisor) uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusRunning {
		return 0
	}
	return time.Since(s.startTime)
}

// Stats returns statistics about the supervised session.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the session.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Name:         s.config.Name,
		Status:       s.status,
		RestartCount: s.restartCount,
	}
	if s.status == StatusRunning {
		stats.Uptime = time.Since(s.startTime)
	}
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	return stats
}
