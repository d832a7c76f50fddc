package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/slipstream/qbremote/internal/downloader/types"
	"github.com/slipstream/qbremote/internal/scheduler"
	"github.com/slipstream/qbremote/internal/scheduler/tasks"
)

type snapshot struct {
	At       time.Time            `json:"at" yaml:"at"`
	Torrents []types.DownloadItem `json:"torrents" yaml:"torrents"`
}

// cmdWatch prints the torrent list on every refresh and reports daemon
// health flips until ctx is cancelled.
func (a *app) cmdWatch(ctx context.Context, args []string) error {
	fs := a.newFlags()
	interval := fs.Duration("interval", a.cfg.Watch.Interval, "refresh interval")
	filter := fs.String("filter", a.cfg.Watch.Filter, "state filter")
	category := fs.String("category", a.cfg.Watch.Category, "only list torrents in this category")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", errUsage)
	}

	sched, err := scheduler.New(a.log)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	sink := func(items []types.DownloadItem) {
		mu.Lock()
		defer mu.Unlock()
		snap := snapshot{At: time.Now(), Torrents: items}
		if snap.Torrents == nil {
			snap.Torrents = []types.DownloadItem{}
		}
		err := a.out.emit(snap, func(w io.Writer) {
			fmt.Fprintf(w, "%s  %d torrent(s)\n", snap.At.Format(time.TimeOnly), len(items))
			torrentsTable(w, snap.Torrents)
		})
		if err != nil {
			a.log.Error().Err(err).Msg("Failed to write snapshot")
		}
	}
	onHealth := func(s tasks.HealthStatus) {
		mu.Lock()
		defer mu.Unlock()
		if s.Healthy {
			fmt.Fprintf(a.stderr, "daemon reachable (qBittorrent %s)\n", s.Version)
		} else {
			fmt.Fprintf(a.stderr, "daemon unreachable: %s\n", s.Message)
		}
	}

	filterSpec := types.ListFilter{State: *filter, Category: *category}
	if _, err := tasks.RegisterTorrentRefreshTask(sched, a.backend.Torrents, filterSpec, *interval, sink, &a.log); err != nil {
		return err
	}
	if _, err := tasks.RegisterDaemonHealthTask(sched, a.backend.Torrents, max(*interval, time.Minute), onHealth, &a.log); err != nil {
		return err
	}

	if err := sched.Start(); err != nil {
		return err
	}
	a.log.Info().Dur("interval", *interval).Msg("Watching torrents")

	<-ctx.Done()
	return sched.Stop()
}
