// Package web embeds the pages the host serves to its windows.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var distFS embed.FS

// DistFS returns the embedded UI rooted at dist: the splash page, the
// setup and main window pages and the host script they share.
func DistFS() (fs.FS, error) {
	return fs.Sub(distFS, "dist")
}
