package httpapi

import (
	"net/http"
	"strings"

	"github.com/printflow/portal/internal/errors"
	"github.com/printflow/portal/internal/httputil"
	"github.com/printflow/portal/internal/portal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type authResponse struct {
	Success              bool `json:"success"`
	ConfirmationRequired bool `json:"confirmation_required,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		httputil.WriteError(w, r, errors.Validation("email", "Email is required"))
		return
	}
	if req.Password == "" {
		httputil.WriteError(w, r, errors.Validation("password", "Password is required"))
		return
	}

	// Every sign-in gets a fresh session ID.
	c, err := s.registry.Open(r.Context(), "")
	if err != nil {
		httputil.WriteError(w, r, errors.Internal("Could not start a session", err))
		return
	}
	if err := c.Login(r.Context(), req.Email, req.Password); err != nil {
		s.registry.Forget(c.ID())
		httputil.WriteError(w, r, authFailure(http.StatusUnauthorized, err))
		return
	}

	s.replaceSession(r, c.ID())
	s.setSessionCookie(w, c.ID())
	httputil.WriteJSON(w, http.StatusOK, authResponse{Success: true})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupParams
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	switch {
	case strings.TrimSpace(req.Email) == "":
		httputil.WriteError(w, r, errors.Validation("email", "Email is required"))
		return
	case req.Password == "":
		httputil.WriteError(w, r, errors.Validation("password", "Password is required"))
		return
	case strings.TrimSpace(req.Name) == "":
		httputil.WriteError(w, r, errors.Validation("name", "Name is required"))
		return
	}

	c, err := s.registry.Open(r.Context(), "")
	if err != nil {
		httputil.WriteError(w, r, errors.Internal("Could not start a session", err))
		return
	}
	confirm, err := c.Signup(r.Context(), req)
	if err != nil {
		s.registry.Forget(c.ID())
		httputil.WriteError(w, r, authFailure(http.StatusBadRequest, err))
		return
	}
	if confirm {
		s.registry.Forget(c.ID())
		httputil.WriteJSON(w, http.StatusOK, authResponse{Success: true, ConfirmationRequired: true})
		return
	}

	s.replaceSession(r, c.ID())
	s.setSessionCookie(w, c.ID())
	httputil.WriteJSON(w, http.StatusOK, authResponse{Success: true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Logout clears the cookie even when the session cannot be resolved.
	c, err := s.lookup(r)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Debug("Logout without a resolvable session")
	}
	if c != nil {
		c.Logout(r.Context())
		s.registry.Forget(c.ID())
	}
	s.clearSessionCookie(w)
	httputil.WriteJSON(w, http.StatusOK, authResponse{Success: true})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		httputil.WriteError(w, r, errors.Validation("email", "Email is required"))
		return
	}

	c, err := s.lookup(r)
	if err != nil || c == nil {
		c, err = s.registry.Open(r.Context(), "")
		if err != nil {
			httputil.WriteError(w, r, errors.Internal("Could not start a session", err))
			return
		}
		defer s.registry.Forget(c.ID())
	}
	if err := c.ResetPassword(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, r, authFailure(http.StatusBadRequest, err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, authResponse{Success: true})
}

// handleAuthState returns the caller's auth state. With ?wait=true it blocks
// until a pending profile resolution finishes.
func (s *Server) handleAuthState(w http.ResponseWriter, r *http.Request) {
	c, err := s.lookup(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if c == nil {
		httputil.WriteJSON(w, http.StatusOK, auth.State{})
		return
	}
	if r.URL.Query().Get("wait") == "true" {
		if err := c.Wait(r.Context()); err != nil {
			httputil.WriteError(w, r, errors.Unavailable("Request cancelled", err))
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, c.State())
}

// replaceSession discards the session behind the request's previous cookie
// once a new session has been issued.
func (s *Server) replaceSession(r *http.Request, newID string) {
	if cookie, err := r.Cookie(s.cookie.Name); err == nil && cookie.Value != "" && cookie.Value != newID {
		s.registry.Discard(r.Context(), cookie.Value)
	}
}

func authFailure(status int, err error) error {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return errors.AuthFailed(status, authErr.Message, authErr.Err)
	}
	return errors.Internal("Authentication failed", err)
}
