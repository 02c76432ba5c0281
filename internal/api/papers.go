package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/paperchat/paperchat/internal/chat"
	"github.com/paperchat/paperchat/internal/conversation"
	"github.com/paperchat/paperchat/internal/log"
	"github.com/paperchat/paperchat/internal/search"
)

// Document chats carry the paper text in the request, so the limit is wider
// than for general turns.
const maxDocBody = 4 << 20 // 4MB

// paperHandler serves single-document chat turns.
type paperHandler struct {
	docs     *chat.DocChat
	resolver search.FullTextResolver
	logger   log.Logger
}

type docTurnRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Title          string `json:"title"`
	Text           string `json:"text,omitempty"`
	Message        string `json:"message"`
}

type docTurnResponse struct {
	Conversation *conversation.Conversation `json:"conversation"`
	State        string                     `json:"state"`
	Questions    []string                   `json:"questions,omitempty"`
}

func (h *paperHandler) submit(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "user_required", "X-User-ID header is required", h.logger)
		return
	}
	paperID := r.PathValue("id")

	var req docTurnRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxDocBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	// Callers that already hold the full text send it inline; otherwise it
	// is resolved from the knowledge graph.
	if req.Text == "" && h.resolver != nil {
		texts, err := h.resolver.Resolve(r.Context(), []string{paperID})
		if err != nil {
			h.logger.Error("resolving paper text", "error", err, "paper", paperID)
			writeError(w, http.StatusBadGateway, "resolve_failed", "resolving paper text failed", h.logger)
			return
		}
		if len(texts) > 0 {
			req.Text = texts[0].FullText
			if req.Title == "" {
				req.Title = texts[0].Title
			}
		}
	}

	result, err := h.docs.Submit(r.Context(), chat.DocTurnRequest{
		APIKey:         r.Header.Get("X-OpenAI-Key"),
		OwnerID:        owner,
		ConversationID: req.ConversationID,
		PaperID:        paperID,
		PaperTitle:     req.Title,
		PaperText:      req.Text,
		Message:        req.Message,
	})
	if err != nil {
		h.writeDocError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, docTurnResponse{
		Conversation: result.Conversation,
		State:        result.State.String(),
		Questions:    result.Questions,
	}, h.logger)
}

func (h *paperHandler) writeDocError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "empty_message", "message is required", h.logger)
	case errors.Is(err, chat.ErrTurnInFlight):
		writeError(w, http.StatusConflict, "turn_in_flight", "a turn is already in flight for this conversation", h.logger)
	case errors.Is(err, conversation.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
	default:
		h.logger.Error("submitting document turn", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "submitting turn failed", h.logger)
	}
}
