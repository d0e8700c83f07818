// Package web holds the browser assets served by the site.
package web

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed static templates
var assets embed.FS

// Static returns the files served verbatim (service worker, bridge script).
func Static() fs.FS {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// IndexTemplate parses the landing page template.
func IndexTemplate() (*template.Template, error) {
	return template.ParseFS(assets, "templates/index.html")
}
