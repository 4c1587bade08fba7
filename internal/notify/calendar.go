package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cardio-ai/triage/internal/shared/config"
	"github.com/cardio-ai/triage/internal/shared/errors"
)

const calendarAPIBase = "https://www.googleapis.com/calendar/v3"

// ErrNoFreeSlot indicates the whole search window was busy.
var ErrNoFreeSlot = errors.Wrap(errors.ErrConflict, "no free slot in search window")

// CalendarClient books consult slots on the doctor's Google calendar through
// the REST API with a bearer token.
type CalendarClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	calendarID string
	slot       time.Duration
	lead       time.Duration
	searchDays int

	now func() time.Time
}

func NewCalendarClient(cfg config.CalendarConfig) *CalendarClient {
	return &CalendarClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    calendarAPIBase,
		token:      cfg.AccessToken,
		calendarID: cfg.CalendarID,
		slot:       time.Duration(cfg.SlotMinutes) * time.Minute,
		lead:       time.Duration(cfg.LeadHours) * time.Hour,
		searchDays: cfg.SearchDays,
		now:        time.Now,
	}
}

type busyInterval struct {
	Start time.Time
	End   time.Time
}

// Schedule finds the first free slot in the doctor's calendar, starting one
// lead period from now, and books a consult event inviting the patient.
// Returns the created event id.
func (c *CalendarClient) Schedule(ctx context.Context, patientEmail, patientName, description string) (string, error) {
	start := c.now().UTC().Add(c.lead).Truncate(c.slot).Add(c.slot)
	end := start.Add(time.Duration(c.searchDays) * 24 * time.Hour)

	busy, err := c.freeBusy(ctx, start, end)
	if err != nil {
		return "", err
	}

	for candidate := start; candidate.Before(end); candidate = candidate.Add(c.slot) {
		if overlapsBusy(candidate, candidate.Add(c.slot), busy) {
			continue
		}
		return c.createEvent(ctx, candidate, candidate.Add(c.slot), patientEmail, patientName, description)
	}
	return "", ErrNoFreeSlot
}

func (c *CalendarClient) freeBusy(ctx context.Context, start, end time.Time) ([]busyInterval, error) {
	payload, err := json.Marshal(map[string]any{
		"timeMin": start.Format(time.RFC3339),
		"timeMax": end.Format(time.RFC3339),
		"items":   []map[string]string{{"id": c.calendarID}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal freebusy query")
	}

	var result struct {
		Calendars map[string]struct {
			Busy []struct {
				Start time.Time `json:"start"`
				End   time.Time `json:"end"`
			} `json:"busy"`
		} `json:"calendars"`
	}
	if err := c.post(ctx, c.baseURL+"/freeBusy", payload, &result); err != nil {
		return nil, errors.Wrap(err, "query freebusy")
	}

	var busy []busyInterval
	for _, b := range result.Calendars[c.calendarID].Busy {
		busy = append(busy, busyInterval{Start: b.Start, End: b.End})
	}
	return busy, nil
}

func (c *CalendarClient) createEvent(ctx context.Context, start, end time.Time, patientEmail, patientName, description string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"summary":     fmt.Sprintf("Cardio consult: %s", patientName),
		"description": description,
		"start":       map[string]string{"dateTime": start.Format(time.RFC3339)},
		"end":         map[string]string{"dateTime": end.Format(time.RFC3339)},
		"attendees": []map[string]string{
			{"email": patientEmail},
			{"email": c.calendarID},
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal event")
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events?sendUpdates=all", c.baseURL, url.PathEscape(c.calendarID))
	var event struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, endpoint, payload, &event); err != nil {
		return "", errors.Wrap(err, "create event")
	}
	return event.ID, nil
}

func (c *CalendarClient) post(ctx context.Context, endpoint string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("calendar api status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func overlapsBusy(start, end time.Time, busy []busyInterval) bool {
	for _, b := range busy {
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
