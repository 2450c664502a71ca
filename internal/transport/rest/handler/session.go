package handler

import (
	"encoding/json"
	"io"
	"livesession/internal/model"
	"livesession/internal/service"
	"livesession/internal/transport/rest/middleware"
	"net/http"

	"github.com/gorilla/mux"
)

// SessionHandler handles session endpoints
type SessionHandler struct {
	gateway *service.SessionGateway
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(gateway *service.SessionGateway) *SessionHandler {
	return &SessionHandler{gateway: gateway}
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}

	var body model.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	body.HostID = req.ID

	session, err := h.gateway.ScheduleSession(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// Get handles GET /v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	session, err := h.gateway.ViewSession(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Join handles POST /v1/sessions/{id}/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	// body is optional; only private sessions need one
	var body model.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := h.gateway.RequestJoin(r.Context(), id, req, body.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if outcome.Denial != nil {
		writeDenial(w, outcome.Denial)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// Leave handles POST /v1/sessions/{id}/leave
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	if err := h.gateway.Leave(r.Context(), id, req.ID); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// End handles POST /v1/sessions/{id}/end
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	session, denial, err := h.gateway.EndForAll(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if denial != nil {
		writeDenial(w, denial)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Cancel handles POST /v1/sessions/{id}/cancel
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	session, denial, err := h.gateway.Cancel(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if denial != nil {
		writeDenial(w, denial)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Heartbeat handles POST /v1/sessions/{id}/heartbeat
func (h *SessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	status, err := h.gateway.Heartbeat(r.Context(), id, req.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if status.Denial != nil {
		writeDenial(w, status.Denial)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// Presence handles GET /v1/sessions/{id}/presence
func (h *SessionHandler) Presence(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	snapshot, err := h.gateway.ViewPresence(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// ListMine handles GET /v1/me/sessions?kind=class
func (h *SessionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	req, ok := requester(w, r)
	if !ok {
		return
	}

	kind := model.SessionKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = model.KindClass
	}

	sessions, err := h.gateway.ListAssigned(r.Context(), req.ID, kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}

	writeJSON(w, http.StatusOK, sessions)
}

func requester(w http.ResponseWriter, r *http.Request) (model.Requester, bool) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	}
	return req, ok
}
