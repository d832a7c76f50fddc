// Package cli implements the qbremote command line.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/slipstream/qbremote/internal/config"
	"github.com/slipstream/qbremote/internal/downloader/qbittorrent"
	"github.com/slipstream/qbremote/internal/downloader/types"
	"github.com/slipstream/qbremote/internal/logger"
	"github.com/slipstream/qbremote/internal/search"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// errUsage marks a command line the user has to fix.
var errUsage = errors.New("usage error")

// Searcher runs searches against the daemon's search plugins.
type Searcher interface {
	SearchWithBudget(ctx context.Context, query, category string, budget time.Duration) ([]search.Record, error)
	ListPlugins(ctx context.Context) ([]search.PluginDescriptor, error)
}

// Backend is what the commands talk to.
type Backend struct {
	Torrents types.TorrentClient
	Search   Searcher
}

// Options customizes Run. Zero values use the process defaults.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// LoadConfig loads the configuration; config.Load when nil.
	LoadConfig func(path string) (*config.Config, error)
	// Connect builds the backend; the qBittorrent client when nil.
	Connect func(cfg *config.Config, log zerolog.Logger) (*Backend, error)
}

type command struct {
	name    string
	args    string
	summary string
	run     func(a *app, ctx context.Context, args []string) error
}

var commands = []command{
	{"search", "[-category c] [-timeout d] [-sort seeders|size|none] <query...>", "search the daemon's plugins", (*app).cmdSearch},
	{"plugins", "", "list search plugins", (*app).cmdPlugins},
	{"list", "[-filter state] [-category c]", "list torrents", (*app).cmdList},
	{"add", "[-category c] [-paused] [-savepath p] <magnet|file.torrent|url>", "add a torrent", (*app).cmdAdd},
	{"pause", "<hash...>", "pause torrents", (*app).cmdPause},
	{"resume", "<hash...>", "resume torrents", (*app).cmdResume},
	{"delete", "[-files] <hash...>", "delete torrents", (*app).cmdDelete},
	{"files", "<hash>", "list the files of a torrent", (*app).cmdFiles},
	{"prio", "<hash> <fileIndex...> <skip|normal|high|max>", "set file priorities", (*app).cmdPrio},
	{"version", "", "show client and daemon versions", (*app).cmdVersion},
	{"watch", "[-interval d] [-filter state] [-category c]", "refresh the torrent list periodically", (*app).cmdWatch},
}

type app struct {
	cmd     command
	cfg     *config.Config
	log     zerolog.Logger
	out     *printer
	stderr  io.Writer
	backend *Backend
}

// Run parses args (without the program name), executes the command and
// returns the process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	fs := flag.NewFlagSet("qbremote", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	format := fs.String("output", "text", "output format: text, json or yaml")
	logLevel := fs.String("log-level", "", "log level: trace, debug, info, warn, error")
	fs.Usage = func() { usage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}

	out, err := newPrinter(stdout, *format)
	if err != nil {
		fmt.Fprintf(stderr, "qbremote: %v\n", err)
		return ExitUsage
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return ExitUsage
	}
	cmd, ok := lookup(rest[0])
	if !ok {
		fmt.Fprintf(stderr, "qbremote: unknown command %q\n", rest[0])
		fs.Usage()
		return ExitUsage
	}

	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = config.Load
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "qbremote: %v\n", err)
		return ExitError
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logCfg := cfg.Logger()
	logCfg.Output = stderr
	log := logger.New(logCfg)
	defer log.Close()

	a := &app{cmd: cmd, cfg: cfg, log: log.Logger, out: out, stderr: stderr}

	connect := opts.Connect
	if connect == nil {
		connect = connectDaemon
	}
	a.backend, err = connect(cfg, log.Logger)
	if err != nil {
		fmt.Fprintf(stderr, "qbremote: %v\n", err)
		return ExitError
	}

	if err := cmd.run(a, ctx, rest[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "qbremote: %v\nusage: qbremote %s %s\n", err, cmd.name, cmd.args)
			return ExitUsage
		}
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		fmt.Fprintf(stderr, "qbremote %s: %v\n", cmd.name, err)
		return ExitError
	}
	return ExitOK
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "usage: qbremote [flags] <command> [args]")
	fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	width := 0
	for _, c := range commands {
		names = append(names, c.name)
		width = max(width, len(c.name))
	}
	sort.Strings(names)
	for _, name := range names {
		c, _ := lookup(name)
		fmt.Fprintf(w, "  %-*s  %s\n", width, c.name, c.summary)
	}
}

// connectDaemon wires the qBittorrent client, its session and the search
// coordinator together.
func connectDaemon(cfg *config.Config, log zerolog.Logger) (*Backend, error) {
	client, err := qbittorrent.NewFromConfig(cfg.Client(), log)
	if err != nil {
		return nil, err
	}
	coordinator := search.NewCoordinator(
		qbittorrent.NewSearchAdapter(client),
		client.Session(),
		cfg.SearchPolicy(),
		log,
	)
	return &Backend{Torrents: client, Search: coordinator}, nil
}

// newFlags returns a flag set for the running subcommand.
func (a *app) newFlags() *flag.FlagSet {
	fs := flag.NewFlagSet(a.cmd.name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "usage: qbremote %s %s\n", a.cmd.name, a.cmd.args)
		fs.PrintDefaults()
	}
	return fs
}

// parseFlags parses a subcommand's flags, turning parse failures into
// usage errors.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

// hashesArg validates a list of torrent hashes.
func hashesArg(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: at least one hash is required", errUsage)
	}
	hashes := make([]string, 0, len(args))
	for _, h := range args {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			return nil, fmt.Errorf("%w: empty hash", errUsage)
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}
