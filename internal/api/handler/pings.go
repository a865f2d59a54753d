package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Wesquire/pruuf/internal/api/respond"
	"github.com/Wesquire/pruuf/internal/cache"
	"github.com/Wesquire/pruuf/internal/pruuf"
)

// pingView is the wire representation of a ping. Lateness is derived from
// the completion instant and the deadline on every read.
type pingView struct {
	ID           string     `json:"id"`
	ConnectionID string     `json:"connection_id"`
	SenderID     string     `json:"sender_id"`
	ReceiverID   string     `json:"receiver_id"`
	Day          string     `json:"day"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	DeadlineAt   time.Time  `json:"deadline_at"`
	Status       string     `json:"status"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Method       string     `json:"completion_method,omitempty"`
	Late         bool       `json:"late"`
}

func toPingView(p pruuf.Ping) pingView {
	return pingView{
		ID:           p.ID,
		ConnectionID: p.ConnectionID,
		SenderID:     p.SenderID,
		ReceiverID:   p.ReceiverID,
		Day:          p.Day.String(),
		ScheduledAt:  p.ScheduledAt,
		DeadlineAt:   p.DeadlineAt,
		Status:       string(p.Status),
		CompletedAt:  p.CompletedAt,
		Method:       string(p.Method),
		Late:         p.Late(),
	}
}

type completeRequest struct {
	Method      string `json:"method"`
	Coordinates *struct {
		Latitude       float64 `json:"latitude"`
		Longitude      float64 `json:"longitude"`
		AccuracyMeters float64 `json:"accuracy_meters"`
	} `json:"coordinates,omitempty"`
}

// CompletePing marks one pending ping completed.
// @Summary Complete a ping
// @Description Marks a pending ping completed by tap or verified in-person check.
// @Tags pings
// @Accept json
// @Produce json
// @Param pingID path string true "Ping ID"
// @Param body body completeRequest true "Completion method and optional coordinates"
// @Success 200 {object} pingView
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Failure 410 {object} respond.ErrorResponse
// @Failure 422 {object} respond.ErrorResponse
// @Router /api/v1/pings/{pingID}/complete [post]
func (h *Handler) CompletePing(w http.ResponseWriter, r *http.Request) {
	pingID := chi.URLParam(r, "pingID")

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON")
		return
	}

	var coords *pruuf.Coordinates
	if req.Coordinates != nil {
		coords = &pruuf.Coordinates{
			Latitude:       req.Coordinates.Latitude,
			Longitude:      req.Coordinates.Longitude,
			AccuracyMeters: req.Coordinates.AccuracyMeters,
		}
	}

	p, err := h.engine.Complete(r.Context(), pingID, pruuf.CompletionMethod(req.Method), coords)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}

	h.cache.InvalidatePrefix(p.SenderID)
	respond.WriteJSONObject(w, http.StatusOK, toPingView(p))
}

type completeAllRequest struct {
	SenderID string `json:"sender_id"`
}

// CompleteAll completes every pending ping a sender has today.
// @Summary Complete all pending pings
// @Description Completes every pending ping for the sender in one tap. Pings that lose a concurrent race are skipped, not failed.
// @Tags pings
// @Accept json
// @Produce json
// @Param body body completeAllRequest true "Sender"
// @Success 200 {object} map[string]int
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/pings/complete-all [post]
func (h *Handler) CompleteAll(w http.ResponseWriter, r *http.Request) {
	var req completeAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SenderID == "" {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "sender_id is required")
		return
	}

	result, err := h.engine.CompleteAll(r.Context(), req.SenderID)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}

	h.cache.InvalidatePrefix(req.SenderID)
	respond.WriteJSONObject(w, http.StatusOK, map[string]int{
		"completed": result.Completed,
		"on_time":   result.OnTime,
		"late":      result.Late,
		"skipped":   result.Skipped,
	})
}

// TodayPings lists a sender's obligations for today in their current zone.
// @Summary Today's pings
// @Description Lists the sender's pings for today, computed in their current timezone, with the derived late flag.
// @Tags pings
// @Produce json
// @Param sender_id query string true "Sender ID"
// @Success 200 {array} pingView
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/pings/today [get]
func (h *Handler) TodayPings(w http.ResponseWriter, r *http.Request) {
	senderID := r.URL.Query().Get("sender_id")
	if senderID == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_PARAM", "sender_id is required")
		return
	}

	key := cache.Key(senderID, "today")
	if data, etag, ok := h.cache.Get(key); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, cache.TTLToday, true)
		return
	}

	tz, err := h.reads.CurrentTimezone(r.Context(), senderID)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	today := pruuf.DateOf(h.now(), loc)

	pings, err := h.reads.PingsOnDay(r.Context(), senderID, today)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}

	views := make([]pingView, 0, len(pings))
	for _, p := range pings {
		views = append(views, toPingView(p))
	}

	data, err := json.Marshal(map[string]interface{}{
		"day":   today.String(),
		"pings": views,
	})
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	etag := h.cache.Set(key, data, cache.TTLToday)
	respond.WriteJSON(w, data, etag, cache.TTLToday, false)
}
