package search

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Result entry field names used by the daemon.
const (
	fieldTitle       = "fileName"
	fieldDownloadURI = "fileUrl"
	fieldSize        = "fileSize"
	fieldSeeders     = "nbSeeders"
	fieldLeechers    = "nbLeechers"
	fieldSite        = "siteUrl"
	fieldDescription = "descrLink"
)

// Normalize converts raw result entries into records. Entries without a
// title or download URI are dropped; every other entry is kept in order.
func Normalize(entries []RawEntry) []Record {
	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if record, ok := normalizeEntry(entry); ok {
			records = append(records, record)
		}
	}
	return records
}

func normalizeEntry(entry RawEntry) (Record, bool) {
	title, ok := stringField(entry, fieldTitle)
	if !ok {
		return Record{}, false
	}
	uri, ok := stringField(entry, fieldDownloadURI)
	if !ok {
		return Record{}, false
	}

	size, _ := countField(entry, fieldSize)
	seeders, _ := countField(entry, fieldSeeders)
	leechers, _ := countField(entry, fieldLeechers)
	site, _ := stringField(entry, fieldSite)
	descr, _ := stringField(entry, fieldDescription)

	return Record{
		Title:          title,
		DownloadURI:    uri,
		SizeBytes:      size,
		Seeders:        seeders,
		Leechers:       leechers,
		SiteURI:        site,
		DescriptionURI: descr,
	}, true
}

// stringField returns a non-blank string value.
func stringField(entry RawEntry, key string) (string, bool) {
	v, ok := entry[key].(string)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// countField returns a non-negative integer, accepting JSON numbers and
// numbers encoded as text. Plugins report -1 for unknown counts; those
// and anything unparseable come back as (0, false).
func countField(entry RawEntry, key string) (int64, bool) {
	var f float64
	switch v := entry[key].(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		if v < 0 {
			return 0, false
		}
		return v, true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			if n < 0 {
				return 0, false
			}
			return n, true
		}
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			if n < 0 {
				return 0, false
			}
			return n, true
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
