package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/slipstream/qbremote/internal/config"
	"github.com/slipstream/qbremote/internal/downloader/types"
	"github.com/slipstream/qbremote/internal/magnet"
)

func (a *app) cmdList(ctx context.Context, args []string) error {
	fs := a.newFlags()
	filter := fs.String("filter", "all", "state filter: all, downloading, seeding, completed, paused, active, errored")
	category := fs.String("category", "", "only list torrents in this category")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	items, err := a.backend.Torrents.List(ctx, types.ListFilter{
		State:    *filter,
		Category: *category,
		Hashes:   fs.Args(),
	})
	if err != nil {
		return err
	}
	if items == nil {
		items = []types.DownloadItem{}
	}
	return a.out.emit(items, func(w io.Writer) { torrentsTable(w, items) })
}

type addResult struct {
	Hash     string `json:"hash,omitempty" yaml:"hash,omitempty"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	Paused   bool   `json:"paused" yaml:"paused"`
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	fs := a.newFlags()
	category := fs.String("category", "", "category to file the torrent under")
	paused := fs.Bool("paused", false, "add the torrent paused")
	savePath := fs.String("savepath", "", "download directory (default from the daemon)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: exactly one source is required", errUsage)
	}

	src, err := magnet.Resolve(fs.Arg(0))
	if err != nil {
		return err
	}
	opts := src.AddOptions()
	opts.Category = *category
	opts.Paused = *paused
	opts.SavePath = *savePath

	hash, err := a.backend.Torrents.Add(ctx, opts)
	if err != nil {
		return err
	}
	a.log.Info().Str("hash", hash).Str("name", src.Name).Msg("Torrent added")

	res := addResult{Hash: hash, Name: src.Name, Category: *category, Paused: *paused}
	return a.out.emit(res, func(w io.Writer) {
		switch {
		case hash != "" && src.Name != "":
			fmt.Fprintf(w, "Added %s (%s)\n", src.Name, hash)
		case hash != "":
			fmt.Fprintf(w, "Added %s\n", hash)
		default:
			fmt.Fprintln(w, "Added")
		}
	})
}

func (a *app) cmdPause(ctx context.Context, args []string) error {
	hashes, err := hashesArg(args)
	if err != nil {
		return err
	}
	if err := a.backend.Torrents.Pause(ctx, hashes); err != nil {
		return err
	}
	return a.out.message("Paused %d torrent(s)", len(hashes))
}

func (a *app) cmdResume(ctx context.Context, args []string) error {
	hashes, err := hashesArg(args)
	if err != nil {
		return err
	}
	if err := a.backend.Torrents.Resume(ctx, hashes); err != nil {
		return err
	}
	return a.out.message("Resumed %d torrent(s)", len(hashes))
}

func (a *app) cmdDelete(ctx context.Context, args []string) error {
	fs := a.newFlags()
	files := fs.Bool("files", false, "also delete downloaded data")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	hashes, err := hashesArg(fs.Args())
	if err != nil {
		return err
	}
	if err := a.backend.Torrents.Remove(ctx, hashes, *files); err != nil {
		return err
	}
	if *files {
		return a.out.message("Deleted %d torrent(s) and their data", len(hashes))
	}
	return a.out.message("Deleted %d torrent(s)", len(hashes))
}

func (a *app) cmdFiles(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: exactly one hash is required", errUsage)
	}
	files, err := a.backend.Torrents.Files(ctx, args[0])
	if err != nil {
		return err
	}
	if files == nil {
		files = []types.TorrentFile{}
	}
	return a.out.emit(files, func(w io.Writer) { filesTable(w, files) })
}

func (a *app) cmdPrio(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: a hash, at least one file index and a priority are required", errUsage)
	}
	hash := args[0]
	priority, err := types.ParseFilePriority(args[len(args)-1])
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	indexes := make([]int, 0, len(args)-2)
	for _, arg := range args[1 : len(args)-1] {
		idx, err := strconv.Atoi(arg)
		if err != nil || idx < 0 {
			return fmt.Errorf("%w: invalid file index %q", errUsage, arg)
		}
		indexes = append(indexes, idx)
	}

	if err := a.backend.Torrents.SetFilePriority(ctx, hash, indexes, priority); err != nil {
		return err
	}
	return a.out.message("Set %d file(s) to %s", len(indexes), priority)
}

type versionInfo struct {
	Client string `json:"client" yaml:"client"`
	Commit string `json:"commit,omitempty" yaml:"commit,omitempty"`
	Daemon string `json:"daemon,omitempty" yaml:"daemon,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// cmdVersion always prints the client version; an unreachable daemon is
// reported alongside it and fails the command.
func (a *app) cmdVersion(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: unexpected argument %q", errUsage, args[0])
	}
	info := versionInfo{Client: config.Version, Commit: config.Commit}
	daemon, daemonErr := a.backend.Torrents.Version(ctx)
	if daemonErr != nil {
		info.Error = daemonErr.Error()
	} else {
		info.Daemon = daemon
	}

	err := a.out.emit(info, func(w io.Writer) {
		fmt.Fprintf(w, "qbremote %s\n", info.Client)
		if info.Daemon != "" {
			fmt.Fprintf(w, "qBittorrent %s\n", info.Daemon)
		}
	})
	if err != nil {
		return err
	}
	return daemonErr
}
