package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/auth"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore"
	"github.com/Protocol-Lattice/meeting-agent/pkg/memory"
	"github.com/Protocol-Lattice/meeting-agent/pkg/observability"
	"github.com/Protocol-Lattice/meeting-agent/pkg/runtime"
	"github.com/Protocol-Lattice/meeting-agent/pkg/tools"
)

const maxBodyBytes = 1 << 20

type askRequest struct {
	Query string `json:"query"`
}

type askResponse struct {
	Response string `json:"response"`
}

type travelResponse struct {
	Packages   []docstore.TravelPackage `json:"packages"`
	TotalCount int                      `json:"total_count"`
}

type historyResponse struct {
	SessionID string           `json:"session_id,omitempty"`
	Messages  []memory.Message `json:"messages"`
}

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type authenticateResponse struct {
	Message    any  `json:"message"`
	StatusCode int  `json:"status_code"`
	Error      bool `json:"error"`
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &agent.ValidationError{Field: "body", Reason: "must not be empty"}
		}
		return &agent.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	identity, _ := identityFrom(r.Context())
	reply, err := s.rt.Ask(r.Context(), identity, req.Query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.SetActiveSessions(len(s.rt.ActiveSessions()))
	writeJSON(w, http.StatusOK, askResponse{Response: reply})
}

func (s *Server) handleSearchTravel(w http.ResponseWriter, r *http.Request) {
	var q tools.TravelQuery
	if err := decodeBody(r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	if q.MatchCount < 0 {
		writeError(w, r, &agent.ValidationError{Field: "match_count", Reason: "must not be negative"})
		return
	}
	identity, _ := identityFrom(r.Context())
	packages, err := s.rt.SearchTravel(r.Context(), identity, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if packages == nil {
		packages = []docstore.TravelPackage{}
	}
	writeJSON(w, http.StatusOK, travelResponse{Packages: packages, TotalCount: len(packages)})
}

// handleHistory answers from the live session, or from the transcript archive
// once the session has been evicted. Archive failures degrade to an empty list.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	resp := historyResponse{Messages: []memory.Message{}}
	if session, ok := s.rt.Lookup(identity.UserID); ok {
		resp.SessionID = session.ID()
	}
	msgs, err := s.rt.History(r.Context(), identity.UserID)
	switch {
	case err == nil:
		if len(msgs) > 0 {
			resp.Messages = msgs
		}
	case !errors.Is(err, runtime.ErrNoSession):
		observability.LoggerFromContext(r.Context()).Warn("history unavailable",
			"user_id", identity.UserID, "error", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	command := chi.URLParam(r, "command")
	if command != "signInWithPassword" && command != "signUpWithPassword" {
		writeError(w, r, statusError(http.StatusNotFound, fmt.Sprintf("Authentication type '%s' not recognized", command)))
		return
	}
	if s.accounts == nil {
		writeError(w, r, statusError(http.StatusServiceUnavailable, "authentication is not configured"))
		return
	}
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var (
		message map[string]any
		err     error
	)
	switch command {
	case "signInWithPassword":
		if req.Email == "" || req.Password == "" {
			writeError(w, r, statusError(http.StatusBadRequest, "Missing required parameters"))
			return
		}
		message, err = s.signIn(r, req)
	case "signUpWithPassword":
		if req.Email == "" || req.Password == "" || req.DisplayName == "" {
			writeError(w, r, statusError(http.StatusBadRequest, "Missing required parameters"))
			return
		}
		password := auth.PasswordFromTransport(req.Password, s.passwordKey)
		message, err = s.accounts.SignUp(r.Context(), req.Email, password, req.DisplayName)
	}
	if err != nil {
		writeError(w, r, statusError(http.StatusInternalServerError, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, authenticateResponse{Message: message, StatusCode: http.StatusOK})
}

// signIn performs the password grant and provisions the user's session with
// the fresh access token.
func (s *Server) signIn(r *http.Request, req credentialsRequest) (map[string]any, error) {
	ctx := r.Context()
	password := auth.PasswordFromTransport(req.Password, s.passwordKey)
	session, err := s.accounts.SignInWithPassword(ctx, req.Email, password)
	if err != nil {
		return nil, err
	}
	identity, err := s.rt.Store().ResolveIdentity(ctx, session.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("resolve signed-in user: %w", err)
	}
	agentSession, err := s.rt.Session(identity)
	if err != nil {
		return nil, fmt.Errorf("provision session: %w", err)
	}
	observability.LoggerFromContext(ctx).Info("user signed in",
		"user_id", identity.UserID, "session_id", agentSession.ID())
	s.metrics.SetActiveSessions(len(s.rt.ActiveSessions()))
	return session.Raw, nil
}

var _ Accounts = (*auth.GoTrueClient)(nil)
