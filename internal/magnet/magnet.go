// Package magnet resolves torrent sources given on the command line (magnet
// links, .torrent/.magnet files and HTTP URLs) into add requests.
package magnet

import (
	"bufio"
	"bytes"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	"github.com/slipstream/qbremote/internal/downloader/types"
)

var hexRegex = regexp.MustCompile("^[0-9a-fA-F]{40}$")

// ErrInvalidInfoHash is returned for a btih value that is neither hex nor base32.
var ErrInvalidInfoHash = errors.New("invalid info hash")

// Source is a resolved torrent source.
type Source struct {
	Name     string `json:"name"`
	InfoHash string `json:"infoHash"`
	Size     int64  `json:"size"`
	Link     string `json:"link"`
	File     []byte `json:"-"`
	FileName string `json:"-"`
}

// IsTorrent reports whether the source carries .torrent content.
func (s *Source) IsTorrent() bool {
	return s.File != nil
}

// AddOptions converts the source into an add request. Torrent content is
// uploaded as-is; everything else is handed to the daemon as a URL.
func (s *Source) AddOptions() *types.AddOptions {
	opts := &types.AddOptions{InfoHash: s.InfoHash}
	if s.IsTorrent() {
		opts.FileContent = s.File
		opts.FileName = s.FileName
		return opts
	}
	opts.URL = s.Link
	return opts
}

// Resolve accepts a magnet link, an http(s) URL or a path to a .torrent or
// .magnet file.
func Resolve(arg string) (*Source, error) {
	arg = strings.TrimSpace(arg)
	switch {
	case arg == "":
		return nil, types.ErrInvalidSource
	case strings.HasPrefix(arg, "magnet:"):
		return FromLink(arg)
	case strings.HasPrefix(arg, "http://"), strings.HasPrefix(arg, "https://"):
		// The daemon downloads the file itself; the hash is unknown until then.
		return &Source{Link: arg, InfoHash: ExtractInfoHash(arg)}, nil
	}

	f, err := os.Open(arg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidSource, err)
	}
	defer f.Close()
	return FromFile(f, filepath.Base(arg))
}

// FromFile reads a .torrent file, or a .magnet file holding a link on its
// first non-empty line.
func FromFile(r io.Reader, fileName string) (*Source, error) {
	var (
		src *Source
		err error
	)
	if strings.EqualFold(filepath.Ext(fileName), ".torrent") {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		src, err = FromBytes(data)
		if err != nil {
			return nil, err
		}
		src.FileName = fileName
	} else {
		src, err = FromLink(readMagnetFile(r))
		if err != nil {
			return nil, err
		}
	}
	if src.Name == "" {
		src.Name = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	return src, nil
}

// FromBytes parses .torrent content.
func FromBytes(data []byte) (*Source, error) {
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: not a torrent file: %w", types.ErrInvalidSource, err)
	}

	hash := mi.HashInfoBytes()
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("%w: bad info dictionary: %w", types.ErrInvalidSource, err)
	}
	link := mi.Magnet(&hash, &info)

	return &Source{
		Name:     info.Name,
		InfoHash: hash.HexString(),
		Size:     info.TotalLength(),
		Link:     link.String(),
		File:     data,
	}, nil
}

// FromLink parses a magnet link.
func FromLink(link string) (*Source, error) {
	if link == "" {
		return nil, fmt.Errorf("%w: empty magnet link", types.ErrInvalidSource)
	}
	m, err := metainfo.ParseMagnetUri(link)
	if err != nil {
		return nil, fmt.Errorf("%w: error parsing magnet link: %w", types.ErrInvalidSource, err)
	}
	return &Source{
		Name:     m.DisplayName,
		InfoHash: m.InfoHash.HexString(),
		Link:     link,
	}, nil
}

// ExtractInfoHash returns the lower-case hex btih of a magnet-style string,
// or "" if it has none.
func ExtractInfoHash(s string) string {
	const prefix = "xt=urn:btih:"
	start := strings.Index(s, prefix)
	if start == -1 {
		return ""
	}
	start += len(prefix)
	hash := s[start:]
	if end := strings.IndexAny(hash, "&#"); end != -1 {
		hash = hash[:end]
	}
	hash, err := NormalizeInfoHash(hash)
	if err != nil {
		return ""
	}
	return hash
}

// NormalizeInfoHash converts a hex or base32 info hash to lower-case hex.
func NormalizeInfoHash(input string) (string, error) {
	if hexRegex.MatchString(input) {
		return strings.ToLower(input), nil
	}
	if len(input) == 32 {
		decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(input))
		if err == nil && len(decoded) == 20 {
			return hex.EncodeToString(decoded), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidInfoHash, input)
}

func readMagnetFile(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line
		}
	}
	return ""
}
