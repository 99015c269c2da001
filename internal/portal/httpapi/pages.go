package httpapi

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
)

// guardWait bounds how long a page request waits for a pending profile
// resolution before treating the browser as signed out.
const guardWait = 5 * time.Second

var (
	publicPages    = []string{"/login", "/signup", "/forgot-password"}
	protectedPages = []string{"/dashboard", "/orders", "/orders/{id}", "/invoices", "/invoices/{id}", "/support", "/profile"}
)

func (s *Server) registerPages(r *mux.Router) {
	r.Handle("/", http.RedirectHandler("/dashboard", http.StatusFound)).Methods(http.MethodGet)

	for _, path := range publicPages {
		r.HandleFunc(path, s.publicPage).Methods(http.MethodGet)
	}
	for _, path := range protectedPages {
		r.HandleFunc(path, s.protectedPage).Methods(http.MethodGet)
	}
	// The recovery e-mail lands here with its own token; no guard applies.
	r.HandleFunc("/reset-password", s.serveIndex).Methods(http.MethodGet)

	if s.staticDir != "" {
		assets := http.FileServer(http.Dir(filepath.Join(s.staticDir, "assets")))
		r.PathPrefix("/assets/").Handler(http.StripPrefix("/assets/", assets)).Methods(http.MethodGet)
	}
}

// signedIn reports whether the browser has a loaded profile, waiting for a
// resolution in flight.
func (s *Server) signedIn(r *http.Request) bool {
	c, err := s.lookup(r)
	if err != nil || c == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(r.Context(), guardWait)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		return false
	}
	return c.State().Profile != nil
}

func (s *Server) publicPage(w http.ResponseWriter, r *http.Request) {
	if s.signedIn(r) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	s.serveIndex(w, r)
}

func (s *Server) protectedPage(w http.ResponseWriter, r *http.Request) {
	if !s.signedIn(r) {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	s.serveIndex(w, r)
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if s.staticDir == "" {
		http.NotFound(w, r)
		return
	}
	index := filepath.Join(s.staticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("SPA index missing")
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, index)
}
