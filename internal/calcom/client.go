// Package calcom is a client for the Cal.com v1 scheduling API, used to list
// availability and commit meeting bookings.
package calcom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/willowlabs/jane/internal/booking"
)

const defaultBaseURL = "https://api.cal.com/v1"

// Client implements the calendar provider for the booking sub-flow.
type Client struct {
	apiKey      string
	eventTypeID int
	baseURL     string
	client      *http.Client
}

func NewClient(apiKey string, eventTypeID int) *Client {
	return &Client{
		apiKey:      apiKey,
		eventTypeID: eventTypeID,
		baseURL:     defaultBaseURL,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL points the client at a test server.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

type slotsResponse struct {
	Slots map[string][]struct {
		Time string `json:"time"`
	} `json:"slots"`
}

// ListAvailability returns the open start times for the event type on the
// given day.
func (c *Client) ListAvailability(ctx context.Context, date string) ([]booking.Slot, error) {
	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("eventTypeId", fmt.Sprintf("%d", c.eventTypeID))
	q.Set("startTime", date)
	q.Set("endTime", date)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/slots?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var apiResp slotsResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	var slots []booking.Slot
	for _, day := range apiResp.Slots {
		for _, s := range day {
			slots = append(slots, booking.Slot{Start: s.Time})
		}
	}
	return slots, nil
}

type bookingRequest struct {
	EventTypeID int             `json:"eventTypeId"`
	Start       string          `json:"start"`
	Responses   bookingResponse `json:"responses"`
	TimeZone    string          `json:"timeZone"`
	Language    string          `json:"language"`
	Metadata    map[string]any  `json:"metadata"`
}

type bookingResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Notes string `json:"notes,omitempty"`
}

type bookingResult struct {
	ID  int    `json:"id"`
	UID string `json:"uid"`
}

// Book commits the meeting and returns the provider confirmation.
func (c *Client) Book(ctx context.Context, r booking.Request) (booking.Confirmation, error) {
	body, err := json.Marshal(bookingRequest{
		EventTypeID: c.eventTypeID,
		Start:       r.StartTime,
		Responses: bookingResponse{
			Name:  r.Name,
			Email: r.Email,
			Notes: "Company: " + r.Company,
		},
		TimeZone: "UTC",
		Language: "en",
		Metadata: map[string]any{"source": "jane"},
	})
	if err != nil {
		return booking.Confirmation{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bookings?apiKey="+url.QueryEscape(c.apiKey), bytes.NewReader(body))
	if err != nil {
		return booking.Confirmation{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return booking.Confirmation{}, err
	}

	var result bookingResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return booking.Confirmation{}, fmt.Errorf("unmarshal response: %w", err)
	}

	return booking.Confirmation{
		ID:  result.UID,
		URL: fmt.Sprintf("https://cal.com/booking/%s", result.UID),
	}, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
