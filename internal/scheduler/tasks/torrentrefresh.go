package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/slipstream/qbremote/internal/downloader/types"
	"github.com/slipstream/qbremote/internal/scheduler"
)

// TorrentRefreshTask periodically lists torrents and hands them to a sink.
type TorrentRefreshTask struct {
	client types.TorrentClient
	filter types.ListFilter
	sink   func([]types.DownloadItem)
	logger *zerolog.Logger
}

// NewTorrentRefreshTask creates a new torrent refresh task.
func NewTorrentRefreshTask(client types.TorrentClient, filter types.ListFilter, sink func([]types.DownloadItem), logger *zerolog.Logger) *TorrentRefreshTask {
	subLogger := logger.With().Str("task", "torrent-refresh").Logger()
	return &TorrentRefreshTask{
		client: client,
		filter: filter,
		sink:   sink,
		logger: &subLogger,
	}
}

// Run lists torrents once.
func (t *TorrentRefreshTask) Run(ctx context.Context) error {
	items, err := t.client.List(ctx, t.filter)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to list torrents")
		return err
	}

	counts := map[types.Status]int{}
	for _, item := range items {
		counts[item.Status]++
	}
	t.logger.Debug().
		Int("total", len(items)).
		Int("downloading", counts[types.StatusDownloading]).
		Int("seeding", counts[types.StatusSeeding]).
		Int("errored", counts[types.StatusError]).
		Msg("Refreshed torrents")

	if t.sink != nil {
		t.sink(items)
	}
	return nil
}

// RegisterTorrentRefreshTask registers the torrent refresh task with the scheduler.
func RegisterTorrentRefreshTask(
	sched *scheduler.Scheduler,
	client types.TorrentClient,
	filter types.ListFilter,
	interval time.Duration,
	sink func([]types.DownloadItem),
	logger *zerolog.Logger,
) (*TorrentRefreshTask, error) {
	task := NewTorrentRefreshTask(client, filter, sink, logger)

	if interval == 0 {
		interval = 30 * time.Second
	}

	_, err := sched.RegisterTask(&scheduler.TaskConfig{
		ID:          "torrent-refresh",
		Name:        "Torrent Refresh",
		Description: "Lists torrents on the daemon",
		Cron:        scheduler.Every(interval),
		RunOnStart:  true,
		Func:        task.Run,
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}
