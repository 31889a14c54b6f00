package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gramsetu/citizen-assist-backend/internal/domain"
)

// Client calls an OpenAI-compatible chat-completions endpoint with JSON
// response formatting. One Client is shared by the classifier, extractor,
// and contextual-reply paths; each builds its own system prompt and schema.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewClient constructs a provider client with a bounded per-request timeout.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// --- wire format ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CitizenSnapshot is the subset of the citizen record the classifier is
// conditioned on.
type CitizenSnapshot struct {
	DisplayName      string `json:"display_name,omitempty"`
	UserProvidedName string `json:"user_provided_name,omitempty"`
	Village          string `json:"village,omitempty"`
	Language         string `json:"language,omitempty"`
}

const classifySystemPrompt = `You are the intent classifier for a citizen
registration assistant. The citizen is in registration state %q, which
collects the field %q. Judge ONLY whether the message contains that field and
which state should follow; do not extract values. Allowed next_state values:
%s. Respond with a single JSON object:
{"intent": string, "has_required_data": bool, "next_state": string,
"confidence": number 0..1, "reason": string}`

// Classify judges one message against the current registration state.
//
// The provider's next_state is validated against the state graph: anything
// other than the current state or its direct successor is clamped back to
// the current state with zero confidence, so a misbehaving model can never
// skip ahead.
func (c *Client) Classify(ctx context.Context, message, currentState string, snapshot CitizenSnapshot) (*Classification, error) {
	spec, ok := domain.StateGraph[currentState]
	if !ok {
		return nil, fmt.Errorf("classify: unknown state %q", currentState)
	}
	allowed := currentState
	if spec.Next != "" {
		allowed += ", " + spec.Next
	}

	snapJSON, _ := json.Marshal(snapshot)
	sys := fmt.Sprintf(classifySystemPrompt, currentState, spec.RequiredField, allowed)
	user := fmt.Sprintf("Citizen: %s\nMessage: %s", snapJSON, message)

	var out Classification
	if err := c.completeJSON(ctx, sys, user, &out); err != nil {
		return nil, err
	}

	if out.NextState != currentState && out.NextState != spec.Next {
		out.NextState = currentState
		out.Confidence = 0
		out.Reason = "provider suggested an unreachable state"
	}
	out.Confidence = clamp01(out.Confidence)
	return &out, nil
}

const extractNamePrompt = `Extract the person's full name from the message.
Respond with a single JSON object:
{"full_name": string, "confidence": number 0..1}
Use an empty full_name with confidence 0 when no name is present.`

const extractVillagePrompt = `Extract the village or town name from the
message. Respond with a single JSON object:
{"village_name": string, "confidence": number 0..1, "needs_geocoding": bool}
needs_geocoding is true whenever a village_name is present. Use an empty
village_name with confidence 0 when no place is mentioned.`

// Extract parses the current state's field from the message. States without
// a defined extraction (initial, completed) return nil without calling the
// provider; callers are expected not to invoke extraction for them.
func (c *Client) Extract(ctx context.Context, message, currentState string) (*Extraction, error) {
	var sys string
	switch currentState {
	case domain.StateAwaitingName:
		sys = extractNamePrompt
	case domain.StateAwaitingVillage:
		sys = extractVillagePrompt
	default:
		return nil, nil
	}

	var out Extraction
	if err := c.completeJSON(ctx, sys, "Message: "+message, &out); err != nil {
		return nil, err
	}
	out.FullName = strings.TrimSpace(out.FullName)
	out.VillageName = strings.TrimSpace(out.VillageName)
	out.Confidence = clamp01(out.Confidence)
	return &out, nil
}

const replySystemPrompt = `You are a polite assistant for a district
government helpdesk on WhatsApp. Write a short reply (at most two sentences)
in language %q that %s. Plain text only.`

// GenerateReply asks the provider for a free-text contextual reply, e.g. a
// clarification tailored to what the citizen actually wrote. instruction
// describes what the reply should accomplish.
func (c *Client) GenerateReply(ctx context.Context, message, instruction, lang string) (string, error) {
	sys := fmt.Sprintf(replySystemPrompt, lang, instruction)
	text, err := c.complete(ctx, sys, "Message: "+message, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// completeJSON performs a JSON-mode completion and decodes the content into v.
func (c *Client) completeJSON(ctx context.Context, system, user string, v any) error {
	content, err := c.complete(ctx, system, user, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return fmt.Errorf("decoding structured output: %w", err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
	}
	if jsonMode {
		reqBody.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling inference provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inference provider returned status %d", resp.StatusCode)
	}

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding completion response: %w", err)
	}
	if len(body.Choices) == 0 {
		return "", fmt.Errorf("inference provider returned no choices")
	}
	return body.Choices[0].Message.Content, nil
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
