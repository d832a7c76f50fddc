package search

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_DropsIncompleteEntries(t *testing.T) {
	entries := []RawEntry{
		{"fileName": "Ubuntu 24.04", "fileUrl": "magnet:?xt=urn:btih:aaa", "fileSize": float64(6114656256)},
		{"fileName": "", "fileUrl": "magnet:?xt=urn:btih:bbb"},
		{"fileName": "no link"},
		{"fileName": "   ", "fileUrl": "magnet:?xt=urn:btih:ccc"},
		{"fileName": 42, "fileUrl": "magnet:?xt=urn:btih:ddd"},
		{"fileName": "Debian 12", "fileUrl": "  http://example.org/debian.torrent  "},
	}

	records := Normalize(entries)
	require.Len(t, records, 2)
	assert.Equal(t, "Ubuntu 24.04", records[0].Title)
	assert.Equal(t, int64(6114656256), records[0].SizeBytes)
	assert.Equal(t, "Debian 12", records[1].Title)
	assert.Equal(t, "http://example.org/debian.torrent", records[1].DownloadURI)
}

func TestNormalize_Empty(t *testing.T) {
	records := Normalize(nil)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestNormalize_OptionalFields(t *testing.T) {
	records := Normalize([]RawEntry{{
		"fileName":   "Arch",
		"fileUrl":    "magnet:?xt=urn:btih:eee",
		"nbSeeders":  json.Number("120"),
		"nbLeechers": "7",
		"siteUrl":    "https://tracker.example",
		"descrLink":  "https://tracker.example/t/1",
	}})

	require.Len(t, records, 1)
	assert.Equal(t, Record{
		Title:          "Arch",
		DownloadURI:    "magnet:?xt=urn:btih:eee",
		Seeders:        120,
		Leechers:       7,
		SiteURI:        "https://tracker.example",
		DescriptionURI: "https://tracker.example/t/1",
	}, records[0])
}

func TestCountField(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   int64
		wantOK bool
	}{
		{"float", float64(42), 42, true},
		{"fractional float", float64(42.9), 42, true},
		{"int", 17, 17, true},
		{"int64", int64(1 << 40), 1 << 40, true},
		{"json integer", json.Number("9007199254740993"), 9007199254740993, true},
		{"json float", json.Number("1.5e3"), 1500, true},
		{"numeric string", " 300 ", 300, true},
		{"float string", "12.0", 12, true},
		{"unknown count", float64(-1), 0, false},
		{"negative json", json.Number("-1"), 0, false},
		{"negative string", "-4", 0, false},
		{"garbage string", "lots", 0, false},
		{"nan", math.NaN(), 0, false},
		{"inf", math.Inf(1), 0, false},
		{"overflow", float64(math.MaxInt64), 0, false},
		{"bool", true, 0, false},
		{"missing", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := RawEntry{}
			if tt.value != nil {
				entry["n"] = tt.value
			}
			got, ok := countField(entry, "n")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
