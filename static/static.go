// Package static contains the stub hotel site's stylesheet and other static assets.
package static

import "embed"

//go:embed assets/*
var Assets embed.FS
