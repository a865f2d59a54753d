package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Wesquire/pruuf/internal/api/respond"
	"github.com/Wesquire/pruuf/internal/pruuf"
)

const breakListLimit = 50

type breakView struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toBreakView(b pruuf.Break) breakView {
	return breakView{
		ID:        b.ID,
		SenderID:  b.SenderID,
		StartDate: b.StartDate.String(),
		EndDate:   b.EndDate.String(),
		Status:    string(b.Status),
		Notes:     b.Notes,
		CreatedAt: b.CreatedAt,
	}
}

type scheduleBreakRequest struct {
	SenderID  string `json:"sender_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Notes     string `json:"notes,omitempty"`
}

// ScheduleBreak creates a break for a sender.
// @Summary Schedule a break
// @Description Creates a break over an inclusive date range. A break starting today activates immediately and suspends today's pending pings.
// @Tags breaks
// @Accept json
// @Produce json
// @Param body body scheduleBreakRequest true "Break range"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /api/v1/breaks [post]
func (h *Handler) ScheduleBreak(w http.ResponseWriter, r *http.Request) {
	var req scheduleBreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SenderID == "" {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "sender_id, start_date, and end_date are required")
		return
	}

	start, err := pruuf.ParseDate(req.StartDate)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_DATE", "start_date must be YYYY-MM-DD", req.StartDate)
		return
	}
	end, err := pruuf.ParseDate(req.EndDate)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_DATE", "end_date must be YYYY-MM-DD", req.EndDate)
		return
	}

	b, warning, err := h.breaks.Schedule(r.Context(), req.SenderID, start, end, req.Notes)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}

	h.cache.InvalidatePrefix(req.SenderID)
	body := map[string]interface{}{"break": toBreakView(b)}
	if warning != "" {
		body["warning"] = string(warning)
	}
	respond.WriteJSONObject(w, http.StatusCreated, body)
}

type breakActionRequest struct {
	SenderID string `json:"sender_id"`
}

// CancelBreak cancels a break and restores future obligations.
// @Summary Cancel a break
// @Description Cancels a scheduled or active break. Suspended pings whose deadline has not passed revert to pending.
// @Tags breaks
// @Accept json
// @Produce json
// @Param breakID path string true "Break ID"
// @Param body body breakActionRequest true "Owner"
// @Success 200 {object} breakView
// @Failure 404 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /api/v1/breaks/{breakID}/cancel [post]
func (h *Handler) CancelBreak(w http.ResponseWriter, r *http.Request) {
	h.terminateBreak(w, r, false)
}

// EndBreakEarly ends an active break today instead of its scheduled end.
// @Summary End a break early
// @Description Truncates an active break to today. Obligations resume tomorrow.
// @Tags breaks
// @Accept json
// @Produce json
// @Param breakID path string true "Break ID"
// @Param body body breakActionRequest true "Owner"
// @Success 200 {object} breakView
// @Failure 404 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /api/v1/breaks/{breakID}/end-early [post]
func (h *Handler) EndBreakEarly(w http.ResponseWriter, r *http.Request) {
	h.terminateBreak(w, r, true)
}

func (h *Handler) terminateBreak(w http.ResponseWriter, r *http.Request, early bool) {
	breakID := chi.URLParam(r, "breakID")

	var req breakActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SenderID == "" {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "sender_id is required")
		return
	}

	var b pruuf.Break
	var err error
	if early {
		b, err = h.breaks.EndEarly(r.Context(), breakID, req.SenderID)
	} else {
		b, err = h.breaks.Cancel(r.Context(), breakID, req.SenderID)
	}
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}

	h.cache.InvalidatePrefix(req.SenderID)
	respond.WriteJSONObject(w, http.StatusOK, toBreakView(b))
}

// ListBreaks returns a sender's breaks, newest first.
// @Summary List breaks
// @Description Lists the sender's breaks in any status, newest first.
// @Tags breaks
// @Produce json
// @Param sender_id query string true "Sender ID"
// @Success 200 {array} breakView
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/breaks [get]
func (h *Handler) ListBreaks(w http.ResponseWriter, r *http.Request) {
	senderID := r.URL.Query().Get("sender_id")
	if senderID == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_PARAM", "sender_id is required")
		return
	}

	bs, err := h.reads.BreaksBySender(r.Context(), senderID, breakListLimit)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}

	views := make([]breakView, 0, len(bs))
	for _, b := range bs {
		views = append(views, toBreakView(b))
	}
	respond.WriteJSONObject(w, http.StatusOK, views)
}
