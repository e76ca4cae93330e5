package http

import (
	"bytes"
	"context"
	"fmt"
	stdhttp "net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"blogpress/app/internal/http/templates"
)

const (
	htmlContentType    = "text/html; charset=utf-8"
	defaultContentType = "application/octet-stream"
)

// contentTypes is the fixed extension table of the static server. Anything else is served
// as application/octet-stream.
var contentTypes = map[string]string{
	".html": "text/html",
	".js":   "text/javascript",
	".css":  "text/css",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".webp": "image/webp",
}

func contentTypeFor(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return defaultContentType
}

// resolve maps a request path onto a file below the content root. It reports false when
// the cleaned path escapes the root.
func (s *Server) resolve(requestPath string) (string, bool) {
	if requestPath == "" || requestPath == "/" {
		requestPath = "/" + s.index
	}

	target := filepath.Join(s.root, filepath.FromSlash(requestPath))
	prefix := s.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if target != s.root && !strings.HasPrefix(target, prefix) {
		return "", false
	}
	return target, true
}

// hiddenPath reports whether any segment of p starts with a dot. Such files (.env, temp
// files of in-flight registry writes) are never served.
func hiddenPath(p string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(p), "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}

func (s *Server) serveStatic(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if r.Method != stdhttp.MethodGet && r.Method != stdhttp.MethodHead {
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		s.writeErrorPage(w, r, stdhttp.StatusMethodNotAllowed, "This path only serves files.")
		return
	}

	target, ok := s.resolve(r.URL.Path)
	if !ok {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"path":       r.URL.Path,
				"request_id": RequestIDFromContext(r.Context()),
			}).Warn("blocked path outside content root")
		}
		s.writeErrorPage(w, r, stdhttp.StatusForbidden, "Access to this path is not allowed.")
		return
	}

	if hiddenPath(r.URL.Path) {
		s.writeErrorPage(w, r, stdhttp.StatusNotFound, "File not found.")
		return
	}

	info, err := os.Stat(target)
	switch {
	case err == nil && info.IsDir():
		s.writeErrorPage(w, r, stdhttp.StatusNotFound, "File not found.")
		return
	case err != nil && os.IsNotExist(err):
		s.writeErrorPage(w, r, stdhttp.StatusNotFound, "File not found.")
		return
	case err != nil:
		s.recordError(r.Context(), eris.Wrapf(err, "stat %s", target), "serving static file", logrus.Fields{"path": r.URL.Path})
		s.writeErrorPage(w, r, stdhttp.StatusInternalServerError, "The file could not be read.")
		return
	}

	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			s.writeErrorPage(w, r, stdhttp.StatusNotFound, "File not found.")
			return
		}
		s.recordError(r.Context(), eris.Wrapf(err, "reading %s", target), "serving static file", logrus.Fields{"path": r.URL.Path})
		s.writeErrorPage(w, r, stdhttp.StatusInternalServerError, "The file could not be read.")
		return
	}

	header := w.Header()
	header.Set("Content-Type", contentTypeFor(target))
	header.Set("Content-Length", strconv.Itoa(len(data)))
	header.Set("Last-Modified", info.ModTime().UTC().Format(stdhttp.TimeFormat))
	w.WriteHeader(stdhttp.StatusOK)
	if r.Method == stdhttp.MethodHead {
		return
	}
	_, _ = w.Write(data)
}

func (s *Server) writeErrorPage(w stdhttp.ResponseWriter, r *stdhttp.Request, status int, message string) {
	label := fmt.Sprintf("%d %s", status, stdhttp.StatusText(status))
	body, err := renderComponent(r.Context(), templates.ErrorPage(templates.ErrorPageData{
		Title:       label + " • blogpress",
		StatusLabel: label,
		Message:     message,
		Path:        r.URL.Path,
	}))
	if err != nil {
		s.recordError(r.Context(), err, "rendering error page", logrus.Fields{"status": status})
		body = []byte(label)
	}

	w.Header().Set("Content-Type", htmlContentType)
	w.WriteHeader(status)
	if r.Method == stdhttp.MethodHead {
		return
	}
	_, _ = w.Write(body)
}

func renderComponent(ctx context.Context, component templ.Component) ([]byte, error) {
	var buf bytes.Buffer
	if err := component.Render(ctx, &buf); err != nil {
		return nil, eris.Wrap(err, "rendering component")
	}
	return buf.Bytes(), nil
}
