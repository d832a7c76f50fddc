// Package types defines shared types for the daemon client.
package types

import (
	"context"
	"errors"
	"time"
)

// Common errors for download clients.
var (
	ErrNotConnected        = errors.New("client not connected")
	ErrAuthFailed          = errors.New("authentication failed")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("request conflicts with daemon state")
	ErrUnexpectedResponse  = errors.New("unexpected response from daemon")
	ErrInvalidSource       = errors.New("invalid torrent source")
	ErrInvalidFilePriority = errors.New("invalid file priority")
)

// ClientConfig holds connection settings for the daemon.
type ClientConfig struct {
	URL               string // base URL of the WebUI, e.g. http://localhost:8080
	Username          string // empty when the daemon bypasses auth for this host
	Password          string
	Timeout           time.Duration
	RequestsPerSecond int // 0 disables request pacing
}

// TorrentClient defines the torrent-control surface of the daemon client.
type TorrentClient interface {
	// Connection
	Test(ctx context.Context) error
	Version(ctx context.Context) (string, error)

	// Download operations
	Add(ctx context.Context, opts *AddOptions) (string, error)
	List(ctx context.Context, filter ListFilter) ([]DownloadItem, error)
	Get(ctx context.Context, hash string) (*DownloadItem, error)
	Remove(ctx context.Context, hashes []string, deleteFiles bool) error

	// Control operations
	Pause(ctx context.Context, hashes []string) error
	Resume(ctx context.Context, hashes []string) error

	// Files
	Files(ctx context.Context, hash string) ([]TorrentFile, error)
	SetFilePriority(ctx context.Context, hash string, fileIndexes []int, priority FilePriority) error

	// Settings
	GetDownloadDir(ctx context.Context) (string, error)
}

// ListFilter narrows a torrent listing.
type ListFilter struct {
	State    string // all, downloading, seeding, completed, paused, active, ...
	Category string
	Hashes   []string
}

// AddOptions specifies options for adding a download.
type AddOptions struct {
	URL         string // magnet link or URL to a .torrent file
	FileContent []byte // raw .torrent file content
	FileName    string // multipart file name for FileContent

	// InfoHash is filled in by callers that already parsed the source.
	InfoHash string

	SavePath string
	Category string
	Paused   bool
}

// DownloadItem represents a torrent known to the daemon.
type DownloadItem struct {
	ID             string    `json:"id" yaml:"id"`
	Name           string    `json:"name" yaml:"name"`
	Status         Status    `json:"status" yaml:"status"`
	State          string    `json:"state" yaml:"state"`       // raw daemon state
	Progress       float64   `json:"progress" yaml:"progress"` // 0-100
	Size           int64     `json:"size" yaml:"size"`
	DownloadedSize int64     `json:"downloadedSize" yaml:"downloadedSize"`
	DownloadSpeed  int64     `json:"downloadSpeed" yaml:"downloadSpeed"` // bytes/sec
	UploadSpeed    int64     `json:"uploadSpeed" yaml:"uploadSpeed"`     // bytes/sec
	ETA            int64     `json:"eta" yaml:"eta"`                     // seconds, -1 if unavailable
	Ratio          float64   `json:"ratio" yaml:"ratio"`
	Seeders        int       `json:"seeders" yaml:"seeders"`
	Leechers       int       `json:"leechers" yaml:"leechers"`
	Category       string    `json:"category,omitempty" yaml:"category,omitempty"`
	DownloadDir    string    `json:"downloadDir" yaml:"downloadDir"`
	AddedAt        time.Time `json:"addedAt,omitempty" yaml:"addedAt,omitempty"`
	CompletedAt    time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
}

// Status represents the normalized status of a download.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusSeeding     Status = "seeding"
	StatusChecking    Status = "checking"
	StatusWarning     Status = "warning"
	StatusError       Status = "error"
	StatusUnknown     Status = "unknown"
)

// TorrentFile is a single file inside a torrent.
type TorrentFile struct {
	Index    int          `json:"index" yaml:"index"`
	Name     string       `json:"name" yaml:"name"`
	Size     int64        `json:"size" yaml:"size"`
	Progress float64      `json:"progress" yaml:"progress"` // 0-100
	Priority FilePriority `json:"priority" yaml:"priority"`
}

// FilePriority is the download priority of a file inside a torrent.
type FilePriority int

const (
	PrioritySkip    FilePriority = 0
	PriorityNormal  FilePriority = 1
	PriorityHigh    FilePriority = 6
	PriorityMaximum FilePriority = 7
)

// ParseFilePriority accepts the daemon's numeric priorities and their names.
func ParseFilePriority(s string) (FilePriority, error) {
	switch s {
	case "0", "skip", "none":
		return PrioritySkip, nil
	case "1", "normal":
		return PriorityNormal, nil
	case "6", "high":
		return PriorityHigh, nil
	case "7", "max", "maximum":
		return PriorityMaximum, nil
	default:
		return 0, ErrInvalidFilePriority
	}
}

// String returns the priority name.
func (p FilePriority) String() string {
	switch p {
	case PrioritySkip:
		return "skip"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityMaximum:
		return "maximum"
	default:
		return "mixed"
	}
}
