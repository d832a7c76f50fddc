package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/slipstream/qbremote/internal/downloader/types"
	"github.com/slipstream/qbremote/internal/search"
)

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// printer renders command results in the selected format.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format {
	case formatText, formatJSON, formatYAML:
		return &printer{w: w, format: format}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

// emit writes v as JSON or YAML, or calls text for the text format.
func (p *printer) emit(v any, text func(io.Writer)) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(p.w)
		return nil
	}
}

// message prints a line in text mode and a {"message": ...} document otherwise.
func (p *printer) message(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return p.emit(map[string]string{"message": msg}, func(w io.Writer) {
		fmt.Fprintln(w, msg)
	})
}

func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

func recordsTable(w io.Writer, records []search.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Title,
			humanize.Bytes(uint64(r.SizeBytes)),
			strconv.FormatInt(r.Seeders, 10),
			strconv.FormatInt(r.Leechers, 10),
			r.DownloadURI,
		})
	}
	renderTable(w, []string{"TITLE", "SIZE", "SEEDS", "PEERS", "LINK"}, rows)
}

func pluginsTable(w io.Writer, plugins []search.PluginDescriptor) {
	if len(plugins) == 0 {
		fmt.Fprintln(w, "No search plugins installed.")
		return
	}
	rows := make([][]string, 0, len(plugins))
	for _, p := range plugins {
		enabled := "no"
		if p.Enabled {
			enabled = "yes"
		}
		rows = append(rows, []string{p.ID, p.DisplayName, p.Version, enabled, joinCategories(p.SupportedCategories)})
	}
	renderTable(w, []string{"ID", "NAME", "VERSION", "ENABLED", "CATEGORIES"}, rows)
}

func torrentsTable(w io.Writer, items []types.DownloadItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No torrents.")
		return
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			it.ID,
			it.Name,
			string(it.Status),
			fmt.Sprintf("%.1f%%", it.Progress),
			humanize.Bytes(uint64(max(it.Size, 0))),
			speed(it.DownloadSpeed),
			speed(it.UploadSpeed),
			eta(it.ETA),
			it.Category,
		})
	}
	renderTable(w, []string{"HASH", "NAME", "STATUS", "DONE", "SIZE", "DOWN", "UP", "ETA", "CATEGORY"}, rows)
}

func filesTable(w io.Writer, files []types.TorrentFile) {
	if len(files) == 0 {
		fmt.Fprintln(w, "No files.")
		return
	}
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{
			strconv.Itoa(f.Index),
			f.Name,
			humanize.Bytes(uint64(max(f.Size, 0))),
			fmt.Sprintf("%.1f%%", f.Progress),
			f.Priority.String(),
		})
	}
	renderTable(w, []string{"#", "NAME", "SIZE", "DONE", "PRIORITY"}, rows)
}

func speed(bps int64) string {
	if bps <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(bps)) + "/s"
}

func eta(seconds int64) string {
	if seconds < 0 {
		return "∞"
	}
	if seconds == 0 {
		return "-"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func joinCategories(categories []string) string {
	const limit = 4
	if len(categories) <= limit {
		return strings.Join(categories, ", ")
	}
	return fmt.Sprintf("%s, +%d", strings.Join(categories[:limit], ", "), len(categories)-limit)
}
