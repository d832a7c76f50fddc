package qbittorrent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/slipstream/qbremote/internal/downloader/types"
)

// Search endpoints take the session token explicitly. Session recovery for
// searches is the caller's job, so these never log in on their own.

func (c *Client) startSearch(ctx context.Context, token, pattern, category, plugins string) (int, error) {
	form := url.Values{
		"pattern":  {pattern},
		"category": {category},
		"plugins":  {plugins},
	}
	var resp searchStartResponse
	if err := c.postFormJSON(ctx, token, "/search/start", form, &resp); err != nil {
		return 0, err
	}
	if resp.ID == nil {
		return 0, fmt.Errorf("%w: search start response has no id", types.ErrUnexpectedResponse)
	}
	return *resp.ID, nil
}

func (c *Client) searchStatus(ctx context.Context, token string, id int) (searchStatusEntry, error) {
	var entries []searchStatusEntry
	err := c.getJSON(ctx, token, "/search/status", url.Values{"id": {strconv.Itoa(id)}}, &entries)
	if err != nil {
		return searchStatusEntry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return searchStatusEntry{}, fmt.Errorf("%w: no status entry for search %d", types.ErrUnexpectedResponse, id)
}

// searchResults fetches up to limit results from offset zero. Entries that
// are not JSON objects are dropped.
func (c *Client) searchResults(ctx context.Context, token string, id, limit int) (string, int, []map[string]any, error) {
	query := url.Values{"id": {strconv.Itoa(id)}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp searchResultsResponse
	if err := c.getJSON(ctx, token, "/search/results", query, &resp); err != nil {
		return "", 0, nil, err
	}
	if resp.Results == nil {
		return "", 0, nil, fmt.Errorf("%w: search results response has no results array", types.ErrUnexpectedResponse)
	}

	entries := make([]map[string]any, 0, len(*resp.Results))
	for _, raw := range *resp.Results {
		entry, ok := decodeEntry(raw)
		if !ok {
			c.logger.Debug().Int("search", id).Msg("Skipping malformed search result")
			continue
		}
		entries = append(entries, entry)
	}
	return resp.Status, resp.Total, entries, nil
}

func (c *Client) stopSearch(ctx context.Context, token string, id int) error {
	_, err := c.postForm(ctx, token, "/search/stop", url.Values{"id": {strconv.Itoa(id)}})
	return err
}

func (c *Client) searchPlugins(ctx context.Context, token string) ([]searchPlugin, error) {
	var plugins []searchPlugin
	if err := c.getJSON(ctx, token, "/search/plugins", nil, &plugins); err != nil {
		return nil, err
	}
	return plugins, nil
}

// decodeEntry decodes one result object, keeping numbers as json.Number so
// that large sizes survive without float rounding.
func decodeEntry(raw json.RawMessage) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var entry map[string]any
	if err := dec.Decode(&entry); err != nil || entry == nil {
		return nil, false
	}
	return entry, true
}

// categoryIDs flattens supportedCategories in either of its wire shapes.
func categoryIDs(raw []json.RawMessage) []string {
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		var name string
		if err := json.Unmarshal(r, &name); err == nil {
			if name = strings.TrimSpace(name); name != "" {
				ids = append(ids, name)
			}
			continue
		}
		var cat searchCategory
		if err := json.Unmarshal(r, &cat); err == nil {
			switch {
			case cat.ID != "":
				ids = append(ids, cat.ID)
			case cat.Name != "":
				ids = append(ids, cat.Name)
			}
		}
	}
	return ids
}
