// Package web serves the static dashboard bundled with the daemon.
package web

import "net/http"

type Server struct {
	// Dir is the directory holding the built dashboard assets.
	Dir string
}

// Handler serves files from Dir with caching disabled so a restarted
// daemon always delivers the assets it shipped with.
func (s *Server) Handler() http.Handler {
	if s.Dir == "" {
		return http.NotFoundHandler()
	}
	fs := http.FileServer(http.Dir(s.Dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		fs.ServeHTTP(w, r)
	})
}
