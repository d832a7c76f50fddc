// Package mock provides an in-memory torrent client for tests.
package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/slipstream/qbremote/internal/downloader/types"
)

// MockDownloadDir is the simulated download directory.
const MockDownloadDir = "/mock/downloads"

// mockDownload is a torrent held by the mock client.
type mockDownload struct {
	item  types.DownloadItem
	files []types.TorrentFile
}

// Client implements an in-memory torrent client. Torrents are keyed by
// lower-case info hash.
type Client struct {
	mu        sync.RWMutex
	downloads map[string]*mockDownload
	version   string
	err       error
	calls     map[string]int
	removed   map[string]bool // hash -> deleteFiles
}

// Compile-time check that Client implements TorrentClient.
var _ types.TorrentClient = (*Client)(nil)

// New creates an empty mock client.
func New() *Client {
	return &Client{
		downloads: make(map[string]*mockDownload),
		version:   "v4.6.2",
		calls:     make(map[string]int),
		removed:   make(map[string]bool),
	}
}

// Seed adds torrents with optional files.
func (c *Client) Seed(items ...types.DownloadItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range items {
		item.ID = strings.ToLower(item.ID)
		if item.DownloadDir == "" {
			item.DownloadDir = MockDownloadDir
		}
		c.downloads[item.ID] = &mockDownload{item: item}
	}
}

// SetFiles sets the files of a seeded torrent.
func (c *Client) SetFiles(hash string, files ...types.TorrentFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.downloads[strings.ToLower(hash)]; ok {
		d.files = files
	}
}

// FailWith makes every subsequent call return err; nil restores normal operation.
func (c *Client) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Calls returns how often the named method was called.
func (c *Client) Calls(method string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls[method]
}

// Removed reports whether hash was removed, and whether its files went with it.
func (c *Client) Removed(hash string) (removed, deleteFiles bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	deleteFiles, removed = c.removed[strings.ToLower(hash)]
	return removed, deleteFiles
}

// enter records a call and returns the injected error. Callers hold c.mu.
func (c *Client) enter(method string) error {
	c.calls[method]++
	return c.err
}

// Test verifies the client connection.
func (c *Client) Test(ctx context.Context) error {
	_, err := c.Version(ctx)
	return err
}

// Version returns the simulated daemon version.
func (c *Client) Version(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("Version"); err != nil {
		return "", err
	}
	return c.version, nil
}

// Add adds a mock torrent.
func (c *Client) Add(_ context.Context, opts *types.AddOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("Add"); err != nil {
		return "", err
	}
	if opts.URL == "" && len(opts.FileContent) == 0 {
		return "", types.ErrInvalidSource
	}

	hash := strings.ToLower(opts.InfoHash)
	if hash == "" {
		hash = fmt.Sprintf("mock%036d", len(c.downloads)+1)
	}

	name := opts.FileName
	if name == "" {
		name = opts.URL
	}
	dir := MockDownloadDir
	if opts.SavePath != "" {
		dir = opts.SavePath
	}
	status, state := types.StatusQueued, "queuedDL"
	if opts.Paused {
		status, state = types.StatusPaused, "pausedDL"
	}

	c.downloads[hash] = &mockDownload{item: types.DownloadItem{
		ID:          hash,
		Name:        name,
		Status:      status,
		State:       state,
		ETA:         -1,
		Category:    opts.Category,
		DownloadDir: dir,
		AddedAt:     time.Now(),
	}}
	return hash, nil
}

// List returns the torrents matching filter, ordered by name.
func (c *Client) List(_ context.Context, filter types.ListFilter) ([]types.DownloadItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("List"); err != nil {
		return nil, err
	}

	wanted := map[string]bool{}
	for _, h := range filter.Hashes {
		wanted[strings.ToLower(h)] = true
	}

	items := make([]types.DownloadItem, 0, len(c.downloads))
	for _, d := range c.downloads {
		if len(wanted) > 0 && !wanted[d.item.ID] {
			continue
		}
		if filter.Category != "" && d.item.Category != filter.Category {
			continue
		}
		if !matchState(filter.State, d.item.Status) {
			continue
		}
		items = append(items, d.item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// matchState approximates the daemon's state filters.
func matchState(filter string, status types.Status) bool {
	switch filter {
	case "", "all":
		return true
	case "downloading":
		return status == types.StatusDownloading || status == types.StatusQueued
	case "seeding":
		return status == types.StatusSeeding
	case "completed":
		return status == types.StatusSeeding || status == types.StatusCompleted
	case "paused", "stopped":
		return status == types.StatusPaused || status == types.StatusCompleted
	case "errored":
		return status == types.StatusError
	default:
		return true
	}
}

// Get returns a specific mock torrent.
func (c *Client) Get(_ context.Context, hash string) (*types.DownloadItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("Get"); err != nil {
		return nil, err
	}
	d, ok := c.downloads[strings.ToLower(hash)]
	if !ok {
		return nil, types.ErrNotFound
	}
	item := d.item
	return &item, nil
}

// Remove removes mock torrents. Unknown hashes are ignored, like the daemon does.
func (c *Client) Remove(_ context.Context, hashes []string, deleteFiles bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("Remove"); err != nil {
		return err
	}
	for _, h := range hashes {
		h = strings.ToLower(h)
		if _, ok := c.downloads[h]; ok {
			delete(c.downloads, h)
			c.removed[h] = deleteFiles
		}
	}
	return nil
}

// Pause pauses mock torrents.
func (c *Client) Pause(_ context.Context, hashes []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("Pause"); err != nil {
		return err
	}
	for _, h := range hashes {
		if d, ok := c.downloads[strings.ToLower(h)]; ok {
			if d.item.Status == types.StatusSeeding {
				d.item.Status, d.item.State = types.StatusCompleted, "pausedUP"
			} else if d.item.Status != types.StatusCompleted {
				d.item.Status, d.item.State = types.StatusPaused, "pausedDL"
			}
		}
	}
	return nil
}

// Resume resumes paused mock torrents.
func (c *Client) Resume(_ context.Context, hashes []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("Resume"); err != nil {
		return err
	}
	for _, h := range hashes {
		if d, ok := c.downloads[strings.ToLower(h)]; ok {
			switch d.item.Status {
			case types.StatusPaused:
				d.item.Status, d.item.State = types.StatusDownloading, "downloading"
			case types.StatusCompleted:
				d.item.Status, d.item.State = types.StatusSeeding, "uploading"
			}
		}
	}
	return nil
}

// Files returns the files of a mock torrent.
func (c *Client) Files(_ context.Context, hash string) ([]types.TorrentFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("Files"); err != nil {
		return nil, err
	}
	d, ok := c.downloads[strings.ToLower(hash)]
	if !ok {
		return nil, types.ErrNotFound
	}
	return append([]types.TorrentFile(nil), d.files...), nil
}

// SetFilePriority sets file priorities of a mock torrent.
func (c *Client) SetFilePriority(_ context.Context, hash string, fileIndexes []int, priority types.FilePriority) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("SetFilePriority"); err != nil {
		return err
	}
	d, ok := c.downloads[strings.ToLower(hash)]
	if !ok {
		return types.ErrNotFound
	}
	for _, idx := range fileIndexes {
		found := false
		for i := range d.files {
			if d.files[i].Index == idx {
				d.files[i].Priority = priority
				found = true
			}
		}
		if !found {
			return types.ErrConflict
		}
	}
	return nil
}

// GetDownloadDir returns the mock download directory.
func (c *Client) GetDownloadDir(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetDownloadDir"); err != nil {
		return "", err
	}
	return MockDownloadDir, nil
}

// Clear removes all mock torrents.
func (c *Client) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloads = make(map[string]*mockDownload)
}

// DownloadCount returns the number of mock torrents.
func (c *Client) DownloadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.downloads)
}
