package qbittorrent

import "encoding/json"

// qbitTorrent is an entry of /api/v2/torrents/info.
type qbitTorrent struct {
	Hash         string  `json:"hash"`
	Name         string  `json:"name"`
	Size         int64   `json:"size"`
	Progress     float64 `json:"progress"` // 0-1
	ETA          int64   `json:"eta"`
	State        string  `json:"state"`
	Category     string  `json:"category"`
	SavePath     string  `json:"save_path"`
	ContentPath  string  `json:"content_path"`
	Ratio        float64 `json:"ratio"`
	DLSpeed      int64   `json:"dlspeed"`
	UPSpeed      int64   `json:"upspeed"`
	Completed    int64   `json:"completed"`
	NumSeeds     int     `json:"num_seeds"`
	NumLeechs    int     `json:"num_leechs"`
	AddedOn      int64   `json:"added_on"`
	CompletionOn int64   `json:"completion_on"`
}

// qbitFile is an entry of /api/v2/torrents/files. Daemons before 4.x omit index.
type qbitFile struct {
	Index    *int    `json:"index"`
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Progress float64 `json:"progress"`
	Priority int     `json:"priority"`
}

type qbitPreferences struct {
	SavePath string `json:"save_path"`
}

type searchStartResponse struct {
	ID *int `json:"id"`
}

type searchStatusEntry struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// searchResultsResponse keeps results raw so that one malformed entry
// cannot fail the whole page.
type searchResultsResponse struct {
	Results *[]json.RawMessage `json:"results"`
	Status  string             `json:"status"`
	Total   int                `json:"total"`
}

// searchPlugin is an entry of /api/v2/search/plugins. Older daemons report
// categories as plain strings, newer ones as {"id", "name"} objects.
type searchPlugin struct {
	Name                string            `json:"name"`
	FullName            string            `json:"fullName"`
	Version             string            `json:"version"`
	URL                 string            `json:"url"`
	Enabled             bool              `json:"enabled"`
	SupportedCategories []json.RawMessage `json:"supportedCategories"`
}

type searchCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
