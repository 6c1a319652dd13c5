package server

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed web/index.html
var indexHTML string

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

// handleIndex serves the browser client that speaks the bridge protocol.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, struct{ WSPath string }{s.opts.Config.Path}); err != nil {
		s.log.Error().Err(err).Msg("Rendering index failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
