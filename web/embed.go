package web

import "embed"

// TemplatesFS holds the server-rendered HTML templates.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and script served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
