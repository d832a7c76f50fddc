package qbittorrent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/slipstream/qbremote/internal/downloader/types"
	"github.com/slipstream/qbremote/internal/search"
)

// SearchAdapter exposes the daemon's search endpoints as a search.Transport.
type SearchAdapter struct {
	client *Client
}

var (
	_ search.Transport       = (*SearchAdapter)(nil)
	_ search.SessionProvider = (*Session)(nil)
)

// NewSearchAdapter creates a search transport backed by client.
func NewSearchAdapter(client *Client) *SearchAdapter {
	return &SearchAdapter{client: client}
}

// StartSearch registers a search job and returns its id.
func (a *SearchAdapter) StartSearch(ctx context.Context, token string, req search.StartRequest) (string, error) {
	plugins := search.PluginsEnabled
	if len(req.Plugins) > 0 {
		plugins = strings.Join(req.Plugins, "|")
	}
	category := req.Category
	if category == "" {
		category = search.CategoryAll
	}

	id, err := a.client.startSearch(ctx, token, req.Pattern, category, plugins)
	if err != nil {
		return "", translate(err)
	}
	return strconv.Itoa(id), nil
}

// SearchStatus returns the job's current status and result count.
func (a *SearchAdapter) SearchStatus(ctx context.Context, token, jobID string) (search.JobState, error) {
	id, err := parseJobID(jobID)
	if err != nil {
		return search.JobState{}, err
	}
	entry, err := a.client.searchStatus(ctx, token, id)
	if err != nil {
		return search.JobState{}, translate(err)
	}
	return search.JobState{Status: entry.Status, Total: entry.Total}, nil
}

// SearchResults fetches up to limit raw result entries.
func (a *SearchAdapter) SearchResults(ctx context.Context, token, jobID string, limit int) (*search.ResultsPage, error) {
	id, err := parseJobID(jobID)
	if err != nil {
		return nil, err
	}
	status, total, entries, err := a.client.searchResults(ctx, token, id, limit)
	if err != nil {
		return nil, translate(err)
	}

	page := &search.ResultsPage{
		Status:  status,
		Total:   total,
		Entries: make([]search.RawEntry, len(entries)),
	}
	for i, e := range entries {
		page.Entries[i] = search.RawEntry(e)
	}
	return page, nil
}

// StopSearch stops the job. A job the daemon no longer knows is already stopped.
func (a *SearchAdapter) StopSearch(ctx context.Context, token, jobID string) error {
	id, err := parseJobID(jobID)
	if err != nil {
		return err
	}
	err = a.client.stopSearch(ctx, token, id)
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	return translate(err)
}

// ListPlugins lists the installed search plugins.
func (a *SearchAdapter) ListPlugins(ctx context.Context, token string) ([]search.PluginDescriptor, error) {
	plugins, err := a.client.searchPlugins(ctx, token)
	if err != nil {
		return nil, translate(err)
	}

	result := make([]search.PluginDescriptor, 0, len(plugins))
	for _, p := range plugins {
		result = append(result, search.PluginDescriptor{
			ID:                  p.Name,
			DisplayName:         p.FullName,
			Version:             p.Version,
			URL:                 p.URL,
			Enabled:             p.Enabled,
			SupportedCategories: categoryIDs(p.SupportedCategories),
		})
	}
	return result, nil
}

func parseJobID(jobID string) (int, error) {
	id, err := strconv.Atoi(jobID)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid search job id %q", search.ErrProtocol, jobID)
	}
	return id, nil
}

// translate maps client errors onto the search error taxonomy, keeping the
// original error in the chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, types.ErrAuthFailed):
		return fmt.Errorf("%w: %w", search.ErrAuth, err)
	case errors.Is(err, types.ErrUnexpectedResponse):
		return fmt.Errorf("%w: %w", search.ErrProtocol, err)
	default:
		return fmt.Errorf("%w: %w", search.ErrTransport, err)
	}
}
