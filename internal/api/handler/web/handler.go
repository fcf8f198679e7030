// internal/api/handler/web/handler.go
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/newthinker/dzibridge/internal/app"
)

//go:embed templates/*
var templateFS embed.FS

var pages = []string{"index.html", "result.html"}

// Service is the part of app.Service the web UI needs.
type Service interface {
	Stage(name string, r io.Reader) (string, error)
	Convert(ctx context.Context, staged string) (app.Result, error)
	Bundle(name string) (*bytes.Reader, error)
	Descriptors() (int, error)
}

// Handler provides web UI handlers with template rendering
type Handler struct {
	// pageTemplates holds one template set per page: layout.html plus the page
	pageTemplates map[string]*template.Template
	svc           Service
	accept        string
}

var funcs = template.FuncMap{
	"comma": func(n int) string { return humanize.Comma(int64(n)) },
	"bytes": func(n int64) string { return humanize.Bytes(uint64(n)) },
}

// NewHandler creates a web handler backed by svc using the embedded templates.
// accept is the file input's accept attribute, e.g. ".png,.jpg".
func NewHandler(svc Service, accept string) (*Handler, error) {
	subFS, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("accessing embedded templates: %w", err)
	}
	return NewHandlerWithFS(subFS, svc, accept)
}

// NewHandlerWithFS creates a web handler with templates read from fsys.
func NewHandlerWithFS(fsys fs.FS, svc Service, accept string) (*Handler, error) {
	pageTemplates := make(map[string]*template.Template)

	for _, page := range pages {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(fsys, "layout.html", page)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		pageTemplates[page] = tmpl
	}

	return &Handler{pageTemplates: pageTemplates, svc: svc, accept: accept}, nil
}

// render executes the specified page template with the given data
func (h *Handler) render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := h.pageTemplates[page]
	if !ok {
		http.Error(w, "template not found: "+page, http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
