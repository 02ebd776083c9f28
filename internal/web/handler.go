package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed public
var assets embed.FS

// Handler serves embedded static files and, for every other GET, the
// single-page shell with the matched page filled in.
type Handler struct {
	files  fs.FS
	static http.Handler
	shell  *template.Template
	logger *slog.Logger
}

// NewHandler parses the embedded shell.
func NewHandler(logger *slog.Logger) (*Handler, error) {
	public, err := fs.Sub(assets, "public")
	if err != nil {
		return nil, fmt.Errorf("web: %w", err)
	}
	shell, err := template.ParseFS(public, "index.html")
	if err != nil {
		return nil, fmt.Errorf("web: parse shell: %w", err)
	}
	return &Handler{
		files:  public,
		static: http.FileServer(http.FS(public)),
		shell:  shell,
		logger: logger,
	}, nil
}

type shellData struct {
	Page   Page
	Params map[string]string
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ownedByAPI(r.URL.Path) {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if h.isFile(r.URL.Path) {
		h.static.ServeHTTP(w, r)
		return
	}

	page, params := Match(r.URL.Path)
	var buf bytes.Buffer
	if err := h.shell.Execute(&buf, shellData{Page: page, Params: params}); err != nil {
		h.logger.Error("render shell failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if page == NotFound {
		status = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) isFile(path string) bool {
	name := strings.TrimPrefix(path, "/")
	if name == "" || name == "index.html" {
		return false
	}
	st, err := fs.Stat(h.files, name)
	return err == nil && !st.IsDir()
}

func ownedByAPI(path string) bool {
	for _, prefix := range []string{"/api", "/health"} {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
