// Package rest serves the query side of the discussion hub: message
// history, full-text search, and roster mutation. Every endpoint
// requires a valid token; reads additionally require discussion
// participation, mirroring the real-time join rule.
package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"reviewroom/auth"
	"reviewroom/domain"
	"reviewroom/services"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
	editorRole         = "editor"
)

type Handlers struct {
	log     *slog.Logger
	service services.IDiscussionService
	tokens  auth.TokenManager
}

func NewHandlers(log *slog.Logger, service services.IDiscussionService, tokens auth.TokenManager) *Handlers {
	return &Handlers{log: log, service: service, tokens: tokens}
}

// Register mounts the REST routes on the given mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /discussions/{id}/messages", h.withParticipant(h.getMessages))
	mux.HandleFunc("GET /discussions/{id}/search", h.withParticipant(h.searchMessages))
	mux.HandleFunc("GET /discussions/{id}/participants", h.withParticipant(h.getParticipants))
	mux.HandleFunc("POST /discussions/{id}/participants/{userId}", h.withEditor(h.addParticipant))
	mux.HandleFunc("DELETE /discussions/{id}/participants/{userId}", h.withEditor(h.removeParticipant))
}

type authedHandler func(w http.ResponseWriter, r *http.Request, discussion domain.DiscussionID, claims *auth.CustomClaims)

// withParticipant authenticates the caller and checks the participant
// roster before handing off, so handlers never see unauthorized reads.
func (h *Handlers) withParticipant(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := h.authenticate(w, r)
		if !ok {
			return
		}
		discussion := domain.DiscussionID(r.PathValue("id"))

		isParticipant, err := h.service.IsParticipant(r.Context(), discussion, claims.UserID)
		if err != nil {
			h.log.Error("Participant lookup failed", "discussion", discussion, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !isParticipant {
			http.Error(w, "not a participant of this discussion", http.StatusForbidden)
			return
		}
		next(w, r, discussion, claims)
	}
}

// withEditor gates roster mutation behind the editor role.
func (h *Handlers) withEditor(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := h.authenticate(w, r)
		if !ok {
			return
		}
		if !slices.Contains(claims.Roles, editorRole) {
			http.Error(w, "editor role required", http.StatusForbidden)
			return
		}
		next(w, r, domain.DiscussionID(r.PathValue("id")), claims)
	}
}

func (h *Handlers) authenticate(w http.ResponseWriter, r *http.Request) (*auth.CustomClaims, bool) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return nil, false
	}
	claims, err := h.tokens.Validate(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

type messageResponse struct {
	ID     string    `json:"id"`
	Author string    `json:"author"`
	Body   string    `json:"body"`
	Lang   string    `json:"lang,omitempty"`
	At     time.Time `json:"at"`
}

type messagesPage struct {
	Messages []messageResponse `json:"messages"`
	Cursor   *string           `json:"cursor,omitempty"`
}

func (h *Handlers) getMessages(w http.ResponseWriter, r *http.Request, discussion domain.DiscussionID, _ *auth.CustomClaims) {
	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}

	messages, next, err := h.service.Messages(r.Context(), discussion, cursor)
	if err != nil {
		h.log.Error("Message page retrieval failed", "discussion", discussion, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, messagesPage{
		Messages: lo.Map(messages, func(m domain.Message, _ int) messageResponse {
			return messageResponse{
				ID:     m.ID.String(),
				Author: m.Author,
				Body:   m.Body,
				Lang:   m.Lang,
				At:     m.At,
			}
		}),
		Cursor: next,
	})
}

func (h *Handlers) searchMessages(w http.ResponseWriter, r *http.Request, discussion domain.DiscussionID, _ *auth.CustomClaims) {
	terms := r.URL.Query().Get("q")
	if terms == "" {
		http.Error(w, "missing q parameter", http.StatusBadRequest)
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxSearchLimit {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	ids, err := h.service.Search(r.Context(), discussion, terms, limit)
	if err != nil {
		h.log.Error("Search failed", "discussion", discussion, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"messageIds": lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() }),
	})
}

func (h *Handlers) getParticipants(w http.ResponseWriter, r *http.Request, discussion domain.DiscussionID, _ *auth.CustomClaims) {
	userIDs, err := h.service.Participants(r.Context(), discussion)
	if err != nil {
		h.log.Error("Roster retrieval failed", "discussion", discussion, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"participants": userIDs})
}

func (h *Handlers) addParticipant(w http.ResponseWriter, r *http.Request, discussion domain.DiscussionID, _ *auth.CustomClaims) {
	userID := r.PathValue("userId")
	if err := h.service.AddParticipant(r.Context(), discussion, userID); err != nil {
		h.log.Error("Add participant failed", "discussion", discussion, "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) removeParticipant(w http.ResponseWriter, r *http.Request, discussion domain.DiscussionID, _ *auth.CustomClaims) {
	userID := r.PathValue("userId")
	if err := h.service.RemoveParticipant(r.Context(), discussion, userID); err != nil {
		h.log.Error("Remove participant failed", "discussion", discussion, "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
