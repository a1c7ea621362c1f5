// Package frontend embeds the built map page.
package frontend

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var assets embed.FS

// Dist returns the page assets rooted at index.html
func Dist() fs.FS {
	sub, err := fs.Sub(assets, "dist")
	if err != nil {
		panic(err) // dist is embedded at build time
	}
	return sub
}
