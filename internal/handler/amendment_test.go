package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/stayops/ota-bridge/internal/amendment"
	"github.com/stayops/ota-bridge/internal/repository"
)

// Error bodies use status "error"; the amendment lifecycle value
// "rejected" only appears on successful decision responses.
func TestAmendmentErrorBodies(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"validation", &amendment.ValidationError{Reason: "check-out must be after check-in"}, http.StatusBadRequest},
		{"policy", &amendment.PolicyError{Reason: "rate change exceeds threshold"}, http.StatusBadRequest},
		{"booking missing", repository.ErrBookingNotFound, http.StatusNotFound},
		{"already decided", amendment.ErrAmendmentFinal, http.StatusConflict},
	}
	e := echo.New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			rec := httptest.NewRecorder()
			if err := amendmentError(e.NewContext(req, rec), tc.err); err != nil {
				t.Fatalf("amendmentError returned %v", err)
			}
			if rec.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			var body struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal body: %v", err)
			}
			if body.Status != "error" {
				t.Errorf("status = %q, want %q", body.Status, "error")
			}
			if body.Message == "" {
				t.Errorf("message is empty")
			}
		})
	}
}
