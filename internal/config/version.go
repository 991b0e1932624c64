package config

// Version is injected at build time via ldflags.
//
// Build with:
//
//	go build -ldflags "-X 'github.com/open2e/open2e/internal/config.Version=1.2.0'"
var Version = "dev"
