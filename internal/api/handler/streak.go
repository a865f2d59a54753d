package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Wesquire/pruuf/internal/api/respond"
	"github.com/Wesquire/pruuf/internal/cache"
)

// GetStreak returns a sender's current streak.
// @Summary Current streak
// @Description Computes the sender's consecutive-completion streak from ping history, optionally scoped to one receiver. Break days extend the streak.
// @Tags streaks
// @Produce json
// @Param senderID path string true "Sender ID"
// @Param receiver_id query string false "Scope to one receiver"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/streaks/{senderID} [get]
func (h *Handler) GetStreak(w http.ResponseWriter, r *http.Request) {
	senderID := chi.URLParam(r, "senderID")
	receiverID := r.URL.Query().Get("receiver_id")

	key := cache.Key(senderID, "streak", receiverID)
	if data, etag, ok := h.cache.Get(key); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, cache.TTLStreak, true)
		return
	}

	count, err := h.streaks.Current(r.Context(), senderID, receiverID)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}

	body := map[string]interface{}{
		"sender_id": senderID,
		"streak":    count,
	}
	if receiverID != "" {
		body["receiver_id"] = receiverID
	}
	data, err := json.Marshal(body)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	etag := h.cache.Set(key, data, cache.TTLStreak)
	respond.WriteJSON(w, data, etag, cache.TTLStreak, false)
}
