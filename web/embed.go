package web

import "embed"

// Templates embeds the HTML templates, nested page directories included.
//
//go:embed templates
var Templates embed.FS

// Static embeds the stylesheet and scripts served under /static.
//
//go:embed static
var Static embed.FS
