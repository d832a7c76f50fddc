package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/slipstream/qbremote/internal/search"
)

func (a *app) cmdSearch(ctx context.Context, args []string) error {
	fs := a.newFlags()
	category := fs.String("category", search.CategoryAll, "plugin category to search")
	timeout := fs.Duration("timeout", 0, "wall-clock budget of the search (default from config)")
	order := fs.String("sort", "seeders", "sort results by seeders, size or none")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return fmt.Errorf("%w: a query is required", errUsage)
	}
	switch *order {
	case "seeders", "size", "none":
	default:
		return fmt.Errorf("%w: unknown sort order %q", errUsage, *order)
	}

	records, err := a.backend.Search.SearchWithBudget(ctx, query, *category, *timeout)
	if err != nil {
		partial, ok := search.PartialRecords(err)
		if !ok {
			return err
		}
		records = partial
		a.log.Warn().Err(err).Int("records", len(records)).Msg("Search timed out")
		fmt.Fprintf(a.stderr, "warning: search timed out, showing %d partial result(s)\n", len(records))
	}

	sortRecords(records, *order)
	if records == nil {
		records = []search.Record{}
	}
	return a.out.emit(records, func(w io.Writer) { recordsTable(w, records) })
}

// sortRecords orders records in place, best first. Ties keep daemon order.
func sortRecords(records []search.Record, order string) {
	switch order {
	case "seeders":
		sort.SliceStable(records, func(i, j int) bool { return records[i].Seeders > records[j].Seeders })
	case "size":
		sort.SliceStable(records, func(i, j int) bool { return records[i].SizeBytes > records[j].SizeBytes })
	}
}

func (a *app) cmdPlugins(ctx context.Context, args []string) error {
	fs := a.newFlags()
	category := fs.String("category", "", "only show enabled plugins supporting this category")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(0))
	}

	plugins, err := a.backend.Search.ListPlugins(ctx)
	if err != nil {
		return err
	}
	if *category != "" {
		plugins = search.EnabledFor(plugins, *category)
	}
	if plugins == nil {
		plugins = []search.PluginDescriptor{}
	}
	return a.out.emit(plugins, func(w io.Writer) { pluginsTable(w, plugins) })
}
