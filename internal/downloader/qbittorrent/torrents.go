package qbittorrent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/slipstream/qbremote/internal/downloader/types"
)

// List returns the torrents matching filter.
func (c *Client) List(ctx context.Context, filter types.ListFilter) ([]types.DownloadItem, error) {
	query := url.Values{}
	if filter.State != "" {
		query.Set("filter", filter.State)
	}
	if filter.Category != "" {
		query.Set("category", filter.Category)
	}
	if len(filter.Hashes) > 0 {
		query.Set("hashes", joinHashes(filter.Hashes))
	}

	var torrents []qbitTorrent
	err := c.withSession(ctx, func(token string) error {
		return c.getJSON(ctx, token, "/torrents/info", query, &torrents)
	})
	if err != nil {
		return nil, err
	}

	items := make([]types.DownloadItem, 0, len(torrents))
	for i := range torrents {
		items = append(items, toDownloadItem(&torrents[i]))
	}
	return items, nil
}

// Get retrieves a torrent by info hash.
func (c *Client) Get(ctx context.Context, hash string) (*types.DownloadItem, error) {
	items, err := c.List(ctx, types.ListFilter{Hashes: []string{hash}})
	if err != nil {
		return nil, err
	}
	for i := range items {
		if strings.EqualFold(items[i].ID, hash) {
			return &items[i], nil
		}
	}
	return nil, fmt.Errorf("torrent %s: %w", hash, types.ErrNotFound)
}

// Remove deletes torrents, optionally with their downloaded data.
func (c *Client) Remove(ctx context.Context, hashes []string, deleteFiles bool) error {
	form := url.Values{
		"hashes":      {joinHashes(hashes)},
		"deleteFiles": {strconv.FormatBool(deleteFiles)},
	}
	return c.withSession(ctx, func(token string) error {
		_, err := c.postForm(ctx, token, "/torrents/delete", form)
		return err
	})
}

// Pause pauses torrents.
func (c *Client) Pause(ctx context.Context, hashes []string) error {
	return c.control(ctx, "/torrents/pause", "/torrents/stop", hashes)
}

// Resume resumes torrents.
func (c *Client) Resume(ctx context.Context, hashes []string) error {
	return c.control(ctx, "/torrents/resume", "/torrents/start", hashes)
}

// control posts to path, falling back to the 5.x endpoint name when the
// daemon no longer knows the legacy one.
func (c *Client) control(ctx context.Context, path, fallback string, hashes []string) error {
	form := url.Values{"hashes": {joinHashes(hashes)}}
	return c.withSession(ctx, func(token string) error {
		_, err := c.postForm(ctx, token, path, form)
		if errors.Is(err, types.ErrNotFound) {
			c.logger.Debug().Str("path", path).Str("fallback", fallback).Msg("Endpoint missing, retrying with 5.x name")
			_, err = c.postForm(ctx, token, fallback, form)
		}
		return err
	})
}

// Add adds a torrent from a URL, magnet link or .torrent content and
// returns its info hash when the caller supplied one.
func (c *Client) Add(ctx context.Context, opts *types.AddOptions) (string, error) {
	fields := map[string]string{}
	if opts.SavePath != "" {
		fields["savepath"] = opts.SavePath
	}
	if opts.Category != "" {
		fields["category"] = opts.Category
	}
	if opts.Paused {
		// 5.x renamed the flag; older daemons ignore the unknown field.
		fields["paused"] = "true"
		fields["stopped"] = "true"
	}

	var (
		body []byte
		err  error
	)
	switch {
	case opts.URL != "":
		form := url.Values{"urls": {opts.URL}}
		for k, v := range fields {
			form.Set(k, v)
		}
		err = c.withSession(ctx, func(token string) error {
			body, err = c.postForm(ctx, token, "/torrents/add", form)
			return err
		})
	case len(opts.FileContent) > 0:
		name := opts.FileName
		if name == "" {
			name = "upload.torrent"
		}
		err = c.withSession(ctx, func(token string) error {
			body, err = c.postMultipart(ctx, token, "/torrents/add", fields, "torrents", name, opts.FileContent)
			return err
		})
	default:
		return "", types.ErrInvalidSource
	}
	if err != nil {
		return "", err
	}

	if reply := strings.TrimSpace(string(body)); reply != "" && reply != "Ok." {
		return "", fmt.Errorf("%w: daemon rejected torrent: %s", types.ErrUnexpectedResponse, reply)
	}

	c.logger.Info().
		Str("hash", opts.InfoHash).
		Str("category", opts.Category).
		Bool("paused", opts.Paused).
		Msg("Torrent added")
	return strings.ToLower(opts.InfoHash), nil
}

// Files lists the files of a torrent.
func (c *Client) Files(ctx context.Context, hash string) ([]types.TorrentFile, error) {
	var files []qbitFile
	err := c.withSession(ctx, func(token string) error {
		return c.getJSON(ctx, token, "/torrents/files", url.Values{"hash": {strings.ToLower(hash)}}, &files)
	})
	if err != nil {
		return nil, err
	}

	result := make([]types.TorrentFile, 0, len(files))
	for i, f := range files {
		index := i
		if f.Index != nil {
			index = *f.Index
		}
		result = append(result, types.TorrentFile{
			Index:    index,
			Name:     f.Name,
			Size:     f.Size,
			Progress: f.Progress * 100,
			Priority: types.FilePriority(f.Priority),
		})
	}
	return result, nil
}

// SetFilePriority sets the priority of the given files of a torrent.
func (c *Client) SetFilePriority(ctx context.Context, hash string, fileIndexes []int, priority types.FilePriority) error {
	if len(fileIndexes) == 0 {
		return fmt.Errorf("no file indexes given")
	}
	switch priority {
	case types.PrioritySkip, types.PriorityNormal, types.PriorityHigh, types.PriorityMaximum:
	default:
		return types.ErrInvalidFilePriority
	}

	form := url.Values{
		"hash":     {strings.ToLower(hash)},
		"id":       {joinInts(fileIndexes)},
		"priority": {strconv.Itoa(int(priority))},
	}
	return c.withSession(ctx, func(token string) error {
		_, err := c.postForm(ctx, token, "/torrents/filePrio", form)
		return err
	})
}

// toDownloadItem converts a qBittorrent torrent to a DownloadItem.
func toDownloadItem(t *qbitTorrent) types.DownloadItem {
	item := types.DownloadItem{
		ID:             t.Hash,
		Name:           t.Name,
		Status:         mapState(t.State),
		State:          t.State,
		Progress:       t.Progress * 100,
		Size:           t.Size,
		DownloadedSize: t.Completed,
		DownloadSpeed:  t.DLSpeed,
		UploadSpeed:    t.UPSpeed,
		ETA:            t.ETA,
		Ratio:          t.Ratio,
		Seeders:        t.NumSeeds,
		Leechers:       t.NumLeechs,
		Category:       t.Category,
		DownloadDir:    t.SavePath,
	}
	// qBittorrent reports 8640000 (100 days) for "infinite".
	if item.ETA >= 8640000 {
		item.ETA = -1
	}
	if t.AddedOn > 0 {
		item.AddedAt = time.Unix(t.AddedOn, 0)
	}
	if t.CompletionOn > 0 {
		item.CompletedAt = time.Unix(t.CompletionOn, 0)
	}
	return item
}

// mapState maps qBittorrent torrent states to our status values.
func mapState(state string) types.Status {
	switch state {
	case "downloading", "metaDL", "forcedMetaDL", "forcedDL", "stalledDL", "allocating", "moving":
		return types.StatusDownloading
	case "uploading", "stalledUP", "forcedUP":
		return types.StatusSeeding
	case "pausedDL", "stoppedDL":
		return types.StatusPaused
	case "pausedUP", "stoppedUP":
		return types.StatusCompleted
	case "queuedDL", "queuedUP":
		return types.StatusQueued
	case "checkingDL", "checkingUP", "checkingResumeData":
		return types.StatusChecking
	case "error", "missingFiles":
		return types.StatusError
	default:
		return types.StatusUnknown
	}
}
