package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/paperchat/paperchat/internal/chat"
	"github.com/paperchat/paperchat/internal/conversation"
	"github.com/paperchat/paperchat/internal/log"
	"github.com/paperchat/paperchat/internal/search"
)

const maxTurnBody = 1 << 20 // 1MB

// conversationHandler serves conversation CRUD and turn submission.
type conversationHandler struct {
	store  conversation.Store
	orch   *chat.Orchestrator
	logger log.Logger
}

// ownerID extracts the caller identity. The surrounding deployment fronts
// this API with its own auth; the resolved user arrives as a header.
func ownerID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func (h *conversationHandler) requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := ownerID(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "user_required", "X-User-ID header is required", h.logger)
		return "", false
	}
	return owner, true
}

// conversationSummary is the list representation: metadata without the
// message payload.
type conversationSummary struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Name         string    `json:"name"`
	LastModified time.Time `json:"lastModified"`
}

func (h *conversationHandler) list(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	convs, err := h.store.ListByOwner(r.Context(), owner)
	if err != nil {
		h.logger.Error("listing conversations", "error", err, "owner", owner)
		writeError(w, http.StatusInternalServerError, "internal_error", "listing conversations failed", h.logger)
		return
	}

	summaries := make([]conversationSummary, 0, len(convs))
	for _, c := range convs {
		summaries = append(summaries, conversationSummary{
			ID:           c.ID,
			Kind:         c.Kind,
			Name:         c.Name,
			LastModified: c.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, summaries, h.logger)
}

type createConversationRequest struct {
	Name string `json:"name"`
}

func (h *conversationHandler) create(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	var req createConversationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxTurnBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if req.Name == "" {
		req.Name = "New chat"
	}

	created, err := h.store.Create(r.Context(), &conversation.Conversation{
		OwnerID: owner,
		Kind:    conversation.KindGeneral,
		Name:    req.Name,
	})
	if err != nil {
		h.logger.Error("creating conversation", "error", err, "owner", owner)
		writeError(w, http.StatusInternalServerError, "internal_error", "creating conversation failed", h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, created, h.logger)
}

func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	conv, err := h.store.FindByID(r.Context(), r.PathValue("id"))
	if err != nil || conv.OwnerID != owner {
		if err != nil && !errors.Is(err, conversation.ErrNotFound) {
			h.logger.Error("loading conversation", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "loading conversation failed", h.logger)
			return
		}
		writeError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
		return
	}

	// Opening a conversation makes it the active one for this owner;
	// the owner's in-flight results for other conversations are discarded
	// rather than applied.
	h.orch.SetActive(owner, conv.ID)

	writeJSON(w, http.StatusOK, conv, h.logger)
}

func (h *conversationHandler) delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	conv, err := h.store.FindByID(r.Context(), id)
	if err != nil || conv.OwnerID != owner {
		if err != nil && !errors.Is(err, conversation.ErrNotFound) {
			h.logger.Error("loading conversation", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "loading conversation failed", h.logger)
			return
		}
		writeError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.logger.Error("deleting conversation", "error", err, "conversation", id)
		writeError(w, http.StatusInternalServerError, "internal_error", "deleting conversation failed", h.logger)
		return
	}
	h.orch.Forget(id)

	w.WriteHeader(http.StatusNoContent)
}

// turnFilters are the optional retrieval constraints a turn may carry,
// mirroring the search surface exposed to the UI.
type turnFilters struct {
	FieldFilters      []string `json:"fieldFilters,omitempty"`
	VenueFilters      []string `json:"venueFilters,omitempty"`
	MinCitationFilter int      `json:"minCitationFilter,omitempty"`
	MinDateFilter     int      `json:"minDateFilter,omitempty"`
	MaxDateFilter     int      `json:"maxDateFilter,omitempty"`
	SurveyFilter      *bool    `json:"surveyFilter,omitempty"`
}

func (f turnFilters) toRequest() search.Request {
	return search.Request{
		FieldFilters:      f.FieldFilters,
		VenueFilters:      f.VenueFilters,
		MinCitationFilter: f.MinCitationFilter,
		MinDateFilter:     f.MinDateFilter,
		MaxDateFilter:     f.MaxDateFilter,
		SurveyFilter:      f.SurveyFilter,
	}
}

type turnRequest struct {
	Message string      `json:"message"`
	Filters turnFilters `json:"filters"`
}

type turnResponse struct {
	Conversation *conversation.Conversation `json:"conversation"`
	State        string                     `json:"state"`
	Discarded    bool                       `json:"discarded,omitempty"`
}

// submit handles a turn on an existing conversation (id in the path) or a
// brand-new one (no id).
func (h *conversationHandler) submit(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireOwner(w, r)
	if !ok {
		return
	}

	var req turnRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxTurnBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	result, err := h.orch.Submit(r.Context(), chat.TurnRequest{
		APIKey:         r.Header.Get("X-OpenAI-Key"),
		OwnerID:        owner,
		ConversationID: r.PathValue("id"),
		Message:        req.Message,
		Filters:        req.Filters.toRequest(),
	})
	if err != nil {
		h.writeTurnError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, turnResponse{
		Conversation: result.Conversation,
		State:        result.State.String(),
		Discarded:    result.Discarded,
	}, h.logger)
}

func (h *conversationHandler) writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "empty_message", "message is required", h.logger)
	case errors.Is(err, chat.ErrTurnInFlight):
		writeError(w, http.StatusConflict, "turn_in_flight", "a turn is already in flight for this conversation", h.logger)
	case errors.Is(err, conversation.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
	default:
		h.logger.Error("submitting turn", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "submitting turn failed", h.logger)
	}
}
