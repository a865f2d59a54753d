package respond

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Wesquire/pruuf/internal/pruuf"
)

func TestWriteDomainError_StatusMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{pruuf.ErrPingNotFound, http.StatusNotFound, "PING_NOT_FOUND"},
		{pruuf.ErrBreakNotFound, http.StatusNotFound, "BREAK_NOT_FOUND"},
		{pruuf.ErrPingExpired, http.StatusGone, "PING_EXPIRED"},
		{pruuf.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
		{pruuf.ErrOverlappingBreak, http.StatusConflict, "OVERLAPPING_BREAK"},
		{pruuf.ErrInsufficientLocationAccuracy, http.StatusUnprocessableEntity, "INSUFFICIENT_LOCATION_ACCURACY"},
		{pruuf.ErrInvalidDateRange, http.StatusBadRequest, "INVALID_DATE_RANGE"},
		{pruuf.ErrInvalidConfiguration, http.StatusBadRequest, "INVALID_CONFIGURATION"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.wantCode, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteDomainError(rec, tc.err)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid error body: %v", err)
			}
			if resp.Error.Code != tc.wantCode {
				t.Errorf("code = %s, want %s", resp.Error.Code, tc.wantCode)
			}
		})
	}
}

func TestWriteDomainError_WrappedErrorsMap(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, fmt.Errorf("schedule break: %w", pruuf.ErrOverlappingBreak))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 for wrapped sentinel", rec.Code)
	}
}

func TestWriteDomainError_InternalHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, fmt.Errorf("pq: connection refused"))

	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error.Message != "Internal server error" {
		t.Errorf("message = %q, want opaque internal error", resp.Error.Message)
	}
}
