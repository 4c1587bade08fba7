package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cardio-ai/triage/internal/shared/config"
)

func TestScheduleSkipsBusySlots(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var created map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/freeBusy":
			// First two slots after the lead window are busy.
			json.NewEncoder(w).Encode(map[string]any{
				"calendars": map[string]any{
					"doctor@example.com": map[string]any{
						"busy": []map[string]string{
							{
								"start": base.Add(time.Hour).Format(time.RFC3339),
								"end":   base.Add(time.Hour + 45*time.Minute).Format(time.RFC3339),
							},
						},
					},
				},
			})
		case "/calendars/doctor@example.com/events":
			json.NewDecoder(r.Body).Decode(&created)
			json.NewEncoder(w).Encode(map[string]string{"id": "evt-99"})
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewCalendarClient(config.CalendarConfig{
		AccessToken: "token",
		CalendarID:  "doctor@example.com",
		SlotMinutes: 15,
		LeadHours:   1,
		SearchDays:  7,
	})
	c.baseURL = srv.URL
	c.now = func() time.Time { return base }

	eventID, err := c.Schedule(context.Background(), "jordan@example.com", "Jordan Lee", "consult details")
	if err != nil {
		t.Fatalf("Expected booking to succeed, got %v", err)
	}
	if eventID != "evt-99" {
		t.Errorf("Expected event id evt-99, got '%s'", eventID)
	}

	start, ok := created["start"].(map[string]any)
	if !ok {
		t.Fatal("Expected event start in request")
	}
	// Lead window ends 10:00; busy until 10:45; first free slot is 10:45.
	expected := base.Add(time.Hour + 45*time.Minute).Format(time.RFC3339)
	if start["dateTime"] != expected {
		t.Errorf("Expected slot at %s, got %v", expected, start["dateTime"])
	}
}

func TestScheduleNoFreeSlot(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"calendars": map[string]any{
				"doctor@example.com": map[string]any{
					"busy": []map[string]string{
						{
							"start": base.Format(time.RFC3339),
							"end":   base.Add(30 * 24 * time.Hour).Format(time.RFC3339),
						},
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewCalendarClient(config.CalendarConfig{
		AccessToken: "token",
		CalendarID:  "doctor@example.com",
		SlotMinutes: 15,
		LeadHours:   1,
		SearchDays:  7,
	})
	c.baseURL = srv.URL
	c.now = func() time.Time { return base }

	if _, err := c.Schedule(context.Background(), "jordan@example.com", "Jordan Lee", "details"); err == nil {
		t.Error("Expected error when the whole window is busy")
	}
}
