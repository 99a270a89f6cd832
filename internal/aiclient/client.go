// Package aiclient talks to the generative-AI text service used for
// synonym acceptance, bulk card generation, and schedule parsing. Every
// failure here means "feature unavailable"; callers must never treat it as
// fatal.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrUnavailable = errors.New("ai service unavailable")

const defaultTimeout = 15 * time.Second

type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// New returns a client for the given service; an empty endpoint yields a
// disabled client whose calls all return ErrUnavailable.
func New(endpoint, apiKey, model string) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// generate sends one prompt and returns the raw text of the first
// candidate. Structured calls ask for JSON output and unmarshal it.
func (c *Client) generate(ctx context.Context, prompt string, structured bool) (string, error) {
	if !c.Enabled() {
		return "", ErrUnavailable
	}
	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}
	if structured {
		reqBody.GenerationConfig = &generationConfig{ResponseMIMEType: "application/json"}
	}
	bts, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.endpoint, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bts))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn().Int("status", resp.StatusCode).Bytes("body", body).Msg("ai-call-failed")
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	out := generateResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// CheckAnswer asks whether a typed answer is an acceptable synonym or
// translation of the expected one.
func (c *Client) CheckAnswer(ctx context.Context, question, want, got string) (bool, error) {
	prompt := fmt.Sprintf(
		`A flashcard asks %q and the stored answer is %q. A student answered %q. `+
			`Is the student's answer an acceptable synonym or valid translation? `+
			`Reply with JSON: {"accept": true} or {"accept": false}.`,
		question, want, got)
	text, err := c.generate(ctx, prompt, true)
	if err != nil {
		return false, err
	}
	verdict := struct {
		Accept bool `json:"accept"`
	}{}
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return verdict.Accept, nil
}

type CardDraft struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// GenerateCards turns pasted study material into flashcard drafts.
func (c *Client) GenerateCards(ctx context.Context, material string, max int) ([]CardDraft, error) {
	prompt := fmt.Sprintf(
		`Generate at most %d flashcards from the following study material. `+
			`Reply with a JSON array of objects with "question" and "answer" fields, nothing else.`+
			"\n\n%s", max, material)
	text, err := c.generate(ctx, prompt, true)
	if err != nil {
		return nil, err
	}
	var drafts []CardDraft
	if err := json.Unmarshal([]byte(text), &drafts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(drafts) > max {
		drafts = drafts[:max]
	}
	return drafts, nil
}

// Plan is a parsed natural-language study reminder.
type Plan struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ParsePlan turns free-form planner text ("quiz me on French vocab
// tomorrow at 7pm") into a reminder time and message.
func (c *Client) ParsePlan(ctx context.Context, text string, now time.Time) (Plan, error) {
	prompt := fmt.Sprintf(
		`The current time is %s. Parse the following study-planner request into JSON `+
			`with fields "message" (string) and "at" (RFC 3339 timestamp): %q`,
		now.Format(time.RFC3339), text)
	out, err := c.generate(ctx, prompt, true)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{}
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if plan.At.Before(now) {
		return Plan{}, fmt.Errorf("%w: parsed time is in the past", ErrUnavailable)
	}
	return plan, nil
}
