// Package tasks holds the periodic tasks run by the watch command.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/slipstream/qbremote/internal/downloader/types"
	"github.com/slipstream/qbremote/internal/scheduler"
)

// HealthStatus is the outcome of the latest daemon health check.
type HealthStatus struct {
	Healthy   bool      `json:"healthy" yaml:"healthy"`
	Version   string    `json:"version,omitempty" yaml:"version,omitempty"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
	CheckedAt time.Time `json:"checkedAt" yaml:"checkedAt"`
}

// DaemonHealthTask checks that the daemon is reachable and accepts our session.
type DaemonHealthTask struct {
	client   types.TorrentClient
	onChange func(HealthStatus)
	logger   *zerolog.Logger

	mu     sync.Mutex
	status *HealthStatus
}

// NewDaemonHealthTask creates a new daemon health check task. onChange, if
// set, is called whenever the health state flips.
func NewDaemonHealthTask(client types.TorrentClient, onChange func(HealthStatus), logger *zerolog.Logger) *DaemonHealthTask {
	subLogger := logger.With().Str("task", "daemon-health").Logger()
	return &DaemonHealthTask{
		client:   client,
		onChange: onChange,
		logger:   &subLogger,
	}
}

// Run executes the daemon health check. An unhealthy daemon is recorded,
// not returned, so the schedule keeps going.
func (t *DaemonHealthTask) Run(ctx context.Context) error {
	status := HealthStatus{CheckedAt: time.Now()}

	version, err := t.client.Version(ctx)
	if err != nil {
		status.Message = err.Error()
		t.logger.Warn().Err(err).Msg("Daemon health check failed")
	} else {
		status.Healthy = true
		status.Version = version
		t.logger.Debug().Str("version", version).Msg("Daemon health check passed")
	}

	t.mu.Lock()
	changed := t.status == nil || t.status.Healthy != status.Healthy
	t.status = &status
	t.mu.Unlock()

	if changed && t.onChange != nil {
		t.onChange(status)
	}
	return nil
}

// Status returns the latest result, if any check has run.
func (t *DaemonHealthTask) Status() (HealthStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == nil {
		return HealthStatus{}, false
	}
	return *t.status, true
}

// RegisterDaemonHealthTask registers the daemon health check task with the scheduler.
func RegisterDaemonHealthTask(
	sched *scheduler.Scheduler,
	client types.TorrentClient,
	interval time.Duration,
	onChange func(HealthStatus),
	logger *zerolog.Logger,
) (*DaemonHealthTask, error) {
	task := NewDaemonHealthTask(client, onChange, logger)

	if interval == 0 {
		interval = time.Minute
	}

	_, err := sched.RegisterTask(&scheduler.TaskConfig{
		ID:          "daemon-health",
		Name:        "Daemon Health Check",
		Description: "Tests connectivity and credentials against the daemon",
		Cron:        scheduler.Every(interval),
		RunOnStart:  true,
		Func:        task.Run,
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}
