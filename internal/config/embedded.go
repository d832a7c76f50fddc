package config

// Build metadata injected at build time via ldflags.
//
// Build with:
//
//	go build -ldflags "-X 'github.com/slipstream/qbremote/internal/config.Version=v1.2.0' \
//	                   -X 'github.com/slipstream/qbremote/internal/config.Commit=abc123'"
var (
	Version = "dev"
	Commit  = ""
)
