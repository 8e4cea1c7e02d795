package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusOK).
		BodyHTML("<p>test</p>").
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "<p>test</p>" {
		t.Errorf("Body = %q, want %q", w.Body.String(), "<p>test</p>")
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerTableChanged("expenses").
		TriggerFormReset().
		TriggerSuccessNotification("Expense 3 saved!").
		Write(w)

	trigger := w.Header().Get("HX-Trigger")
	if trigger == "" {
		t.Fatal("HX-Trigger header not set")
	}

	expectedParts := []string{
		`"budget:changed"`,
		`"table":"expenses"`,
		`"form:reset"`,
		`"show-notification"`,
		`"message":"Expense 3 saved!"`,
		`"type":"success"`,
	}
	for _, part := range expectedParts {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger missing %q: %s", part, trigger)
		}
	}
}

func TestHTMXResponseBuilder_Refresh(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Refresh().
		TriggerErrorNotification("boom").
		Write(w)

	if got := w.Header().Get("HX-Refresh"); got != "true" {
		t.Errorf("HX-Refresh = %q, want true", got)
	}
	if trigger := w.Header().Get("HX-Trigger"); !strings.Contains(trigger, `"duration":5000`) {
		t.Errorf("error notification should last 5s: %s", trigger)
	}
}

func TestHTMXResponseBuilder_CustomHeader(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Header("X-Custom", "value").
		Status(http.StatusCreated).
		Write(w)

	if w.Header().Get("X-Custom") != "value" {
		t.Errorf("Custom header not set")
	}
	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		message     string
		wantBody    string
		wantTrigger bool
	}{
		{
			name:     "bad request",
			status:   http.StatusBadRequest,
			message:  "Invalid input",
			wantBody: `<div class="error">Invalid input</div>`,
		},
		{
			name:     "unprocessable entity",
			status:   http.StatusUnprocessableEntity,
			message:  "Validation failed",
			wantBody: `<div class="error">Validation failed</div>`,
		},
		{
			name:        "internal server error also raises a toast",
			status:      http.StatusInternalServerError,
			message:     "Something broke",
			wantBody:    `<div class="error">Something broke</div>`,
			wantTrigger: true,
		},
		{
			name:     "not found",
			status:   http.StatusNotFound,
			message:  "Resource not found",
			wantBody: `<div class="error">Resource not found</div>`,
		},
		{
			name:     "other status",
			status:   http.StatusConflict,
			message:  "Busy",
			wantBody: `<div class="error">Busy</div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			errorResponse(tt.status, tt.message).Write(w)

			if w.Code != tt.status {
				t.Errorf("Status code = %d, want %d", w.Code, tt.status)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", w.Body.String(), tt.wantBody)
			}
			trigger := w.Header().Get("HX-Trigger")
			if tt.wantTrigger != strings.Contains(trigger, `"type":"error"`) {
				t.Errorf("HX-Trigger = %q, want error notification: %v", trigger, tt.wantTrigger)
			}
		})
	}
}

func TestErrorResponse_EscapesHTML(t *testing.T) {
	w := httptest.NewRecorder()

	BadRequestError("<script>alert('xss')</script>").Write(w)

	body := w.Body.String()
	if strings.Contains(body, "<script>") {
		t.Error("Error response did not escape HTML")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("Error response did not properly escape HTML entities")
	}
}

func TestNotificationTypes(t *testing.T) {
	tests := []struct {
		notifType NotificationType
		want      string
	}{
		{NotificationSuccess, "success"},
		{NotificationError, "error"},
		{NotificationInfo, "info"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		NewHTMXResponse().
			TriggerNotification(tt.notifType, "test", 1000).
			Write(w)

		trigger := w.Header().Get("HX-Trigger")
		if !strings.Contains(trigger, `"type":"`+tt.want+`"`) {
			t.Errorf("Notification type %q not found in trigger: %s", tt.want, trigger)
		}
	}
}
