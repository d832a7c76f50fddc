package search

import (
	"context"
	"time"
)

// CategoryAll asks every enabled plugin to search all of its categories.
const CategoryAll = "all"

// PluginsEnabled selects every enabled plugin on the daemon.
const PluginsEnabled = "enabled"

// JobStatus is the coordinator-side state of a search job.
type JobStatus string

const (
	StatusStarted     JobStatus = "started"
	StatusPolling     JobStatus = "polling"
	StatusStabilizing JobStatus = "stabilizing"
	StatusStopped     JobStatus = "stopped"
	StatusTimedOut    JobStatus = "timed_out"
	StatusFailed      JobStatus = "failed"
)

// Job is a search job registered on the daemon. It is owned by the
// coordinator's poll loop; callers only ever see copies.
type Job struct {
	ID                 string    `json:"id"`
	Query              string    `json:"query"`
	Category           string    `json:"category"`
	Status             JobStatus `json:"status"`
	LastObservedTotal  int       `json:"lastObservedTotal"`
	StableObservations int       `json:"stableObservations"`
	Polls              int       `json:"polls"`
	StartedAt          time.Time `json:"startedAt"`
}

// observe folds one status reading into the stability window.
// StableObservations counts consecutive equal non-zero readings,
// including the first one.
func (j *Job) observe(total int) {
	switch {
	case total <= 0:
		j.StableObservations = 0
	case total == j.LastObservedTotal:
		j.StableObservations++
	default:
		j.StableObservations = 1
	}
	j.LastObservedTotal = total
}

// Record is one normalized search result.
type Record struct {
	Title          string `json:"title" yaml:"title"`
	DownloadURI    string `json:"downloadUri" yaml:"downloadUri"`
	SizeBytes      int64  `json:"sizeBytes" yaml:"sizeBytes"`
	Seeders        int64  `json:"seeders" yaml:"seeders"`
	Leechers       int64  `json:"leechers" yaml:"leechers"`
	SiteURI        string `json:"siteUri,omitempty" yaml:"siteUri,omitempty"`
	DescriptionURI string `json:"descriptionUri,omitempty" yaml:"descriptionUri,omitempty"`
}

// PluginDescriptor describes a search plugin installed on the daemon.
type PluginDescriptor struct {
	ID                  string   `json:"id" yaml:"id"`
	DisplayName         string   `json:"displayName" yaml:"displayName"`
	Version             string   `json:"version" yaml:"version"`
	URL                 string   `json:"url,omitempty" yaml:"url,omitempty"`
	Enabled             bool     `json:"enabled" yaml:"enabled"`
	SupportedCategories []string `json:"supportedCategories" yaml:"supportedCategories"`
}

// Supports reports whether the plugin handles the given category.
func (p PluginDescriptor) Supports(category string) bool {
	if category == "" || category == CategoryAll {
		return true
	}
	for _, c := range p.SupportedCategories {
		if c == category {
			return true
		}
	}
	return false
}

// RawEntry is a single result entry as decoded from the daemon, before
// normalization. Values are whatever the JSON decoder produced.
type RawEntry map[string]any

// StartRequest holds the parameters of a search start call.
type StartRequest struct {
	Pattern  string
	Category string
	Plugins  []string // empty selects all enabled plugins
}

// JobState is one status reading for a job.
type JobState struct {
	Status string
	Total  int
}

// Stopped reports whether the daemon considers the job finished.
func (s JobState) Stopped() bool {
	return s.Status == "Stopped"
}

// ResultsPage is the payload of a results fetch.
type ResultsPage struct {
	Status  string
	Total   int
	Entries []RawEntry
}

// Transport executes search requests against the daemon. Implementations
// report a rejected session by wrapping ErrAuth and a malformed payload by
// wrapping ErrProtocol; anything else is treated as a transport failure.
type Transport interface {
	StartSearch(ctx context.Context, token string, req StartRequest) (string, error)
	SearchStatus(ctx context.Context, token, jobID string) (JobState, error)
	SearchResults(ctx context.Context, token, jobID string, limit int) (*ResultsPage, error)
	StopSearch(ctx context.Context, token, jobID string) error
	ListPlugins(ctx context.Context, token string) ([]PluginDescriptor, error)
}

// SessionProvider supplies the session credential carried on daemon requests.
type SessionProvider interface {
	// CurrentToken returns the cached token, if any.
	CurrentToken() (string, bool)
	// Authenticate logs in and returns a fresh token.
	Authenticate(ctx context.Context) (string, error)
	// Invalidate drops the cached token.
	Invalidate()
}
