package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrSendCapExceeded is returned when the hourly outbound cap is reached.
// The reply is dropped, not queued; the citizen can message again.
var ErrSendCapExceeded = errors.New("hourly send cap exceeded")

// Profile is the transport-observed identity of a contact.
type Profile struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Client talks to a Graph-style WhatsApp Business API. It splits long texts
// into ordered parts before delivery and enforces the configured hourly
// outbound cap through a fixed-window counter.
type Client struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	maxTextRunes  int
	hourlyCap     int

	client *http.Client
	window *Window
}

// NewClient constructs a transport client. maxTextRunes caps each message
// part; hourlyCap of 0 disables the outbound window check.
func NewClient(baseURL, phoneNumberID, accessToken string, timeout time.Duration, maxTextRunes, hourlyCap int) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxTextRunes < 1 {
		maxTextRunes = 4096
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		maxTextRunes:  maxTextRunes,
		hourlyCap:     hourlyCap,
		client:        &http.Client{Timeout: timeout},
		window:        NewWindow(),
	}
}

type sendRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText delivers text to recipient, splitting bodies longer than the
// configured limit into ordered parts sent sequentially. Delivery of a
// multi-part reply is not atomic: a mid-sequence failure returns the error
// with earlier parts already delivered.
//
// Returns the transport message ID of the last delivered part.
func (c *Client) SendText(ctx context.Context, recipient, text string) (string, error) {
	parts := splitText(text, c.maxTextRunes)
	lastID := ""
	for _, part := range parts {
		if c.hourlyCap > 0 && c.window.Incr() > c.hourlyCap {
			return lastID, ErrSendCapExceeded
		}
		id, err := c.sendPart(ctx, recipient, part)
		if err != nil {
			return lastID, err
		}
		lastID = id
	}
	return lastID, nil
}

func (c *Client) sendPart(ctx context.Context, recipient, body string) (string, error) {
	reqBody := sendRequest{
		MessagingProduct: "whatsapp",
		To:               recipient,
		Type:             "text",
	}
	reqBody.Text.Body = body

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling messaging transport: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("messaging transport returned status %d", resp.StatusCode)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding send response: %w", err)
	}
	if len(out.Messages) == 0 {
		return "", fmt.Errorf("messaging transport returned no message id")
	}
	return out.Messages[0].ID, nil
}

type profileResponse struct {
	Name       string `json:"name"`
	ProfilePic string `json:"profile_pic,omitempty"`
}

// FetchProfile looks up the transport profile of a contact.
func (c *Client) FetchProfile(ctx context.Context, waID string) (*Profile, error) {
	url := fmt.Sprintf("%s/%s?fields=name,profile_pic", c.baseURL, waID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling messaging transport: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("messaging transport returned status %d", resp.StatusCode)
	}

	var out profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding profile response: %w", err)
	}
	return &Profile{DisplayName: out.Name, AvatarURL: out.ProfilePic}, nil
}

// splitText breaks text into parts of at most maxRunes runes, preferring to
// break at the last newline or space inside each window so words stay whole.
func splitText(text string, maxRunes int) []string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return []string{text}
	}

	var parts []string
	for len(runes) > 0 {
		if len(runes) <= maxRunes {
			parts = append(parts, string(runes))
			break
		}
		cut := maxRunes
		for i := maxRunes - 1; i > maxRunes/2; i-- {
			if runes[i] == '\n' || runes[i] == ' ' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), " \n"))
		runes = runes[cut:]
		// Drop the separator the cut landed on.
		for len(runes) > 0 && (runes[0] == ' ' || runes[0] == '\n') {
			runes = runes[1:]
		}
	}
	return parts
}

// PartsFor reports how many transport messages text would take; used by
// callers budgeting against the hourly window.
func (c *Client) PartsFor(text string) int {
	if utf8.RuneCountInString(text) <= c.maxTextRunes {
		return 1
	}
	return len(splitText(text, c.maxTextRunes))
}
