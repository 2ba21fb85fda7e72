package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrEmptyResponse is returned when the provider answers 2xx without any
// candidate text.
var ErrEmptyResponse = errors.New("provider returned no candidate text")

// Prompt is a structured request for JSON output.
type Prompt struct {
	System string
	User   string
	// Schema is the provider-side response schema (OpenAPI subset for Gemini).
	Schema json.RawMessage
}

// Invoker performs a single provider call with one credential.
type Invoker interface {
	GenerateJSON(ctx context.Context, cred Credential, p Prompt) (json.RawMessage, error)
}

// GeminiOptions configures a GeminiClient.
type GeminiOptions struct {
	BaseURL       string
	Model         string
	Timeout       time.Duration
	PlatformRPS   float64
	PlatformBurst int
}

// GeminiClient calls the Gemini generateContent endpoint. It holds no
// credential of its own; every call names the key to use.
type GeminiClient struct {
	hc       *http.Client
	endpoint string
	platform *rate.Limiter
}

// NewGeminiClient creates a client for the configured model. Calls made with
// the platform credential are throttled to PlatformRPS when it is positive.
func NewGeminiClient(opts GeminiOptions) *GeminiClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.5-flash"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	c := &GeminiClient{
		hc: &http.Client{Timeout: opts.Timeout},
		endpoint: strings.TrimRight(opts.BaseURL, "/") +
			"/v1beta/models/" + url.PathEscape(opts.Model) + ":generateContent",
	}
	if opts.PlatformRPS > 0 {
		burst := opts.PlatformBurst
		if burst < 1 {
			burst = 1
		}
		c.platform = rate.NewLimiter(rate.Limit(opts.PlatformRPS), burst)
	}
	return c
}

type gmPart struct {
	Text string `json:"text"`
}

type gmContent struct {
	Role  string   `json:"role,omitempty"`
	Parts []gmPart `json:"parts"`
}

type gmGenerationConfig struct {
	ResponseMIMEType string          `json:"responseMimeType"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type gmRequest struct {
	SystemInstruction *gmContent         `json:"systemInstruction,omitempty"`
	Contents          []gmContent        `json:"contents"`
	GenerationConfig  gmGenerationConfig `json:"generationConfig"`
}

type gmResponse struct {
	Candidates []struct {
		Content struct {
			Parts []gmPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type gmErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

// maxErrorBody bounds how much of a failed response is kept.
const maxErrorBody = 4 << 10

// GenerateJSON sends p with cred and returns the model's JSON text.
func (c *GeminiClient) GenerateJSON(ctx context.Context, cred Credential, p Prompt) (json.RawMessage, error) {
	if cred.SourceLabel == SourcePlatform && c.platform != nil {
		if err := c.platform.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for platform quota: %w", err)
		}
	}

	req := gmRequest{
		Contents:         []gmContent{{Role: "user", Parts: []gmPart{{Text: p.User}}}},
		GenerationConfig: gmGenerationConfig{ResponseMIMEType: "application/json", ResponseSchema: p.Schema},
	}
	if p.System != "" {
		req.SystemInstruction = &gmContent{Parts: []gmPart{{Text: p.System}}}
	}
	body, err := json.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("encoding gemini request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-goog-api-key", cred.Secret)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("calling gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, upstreamError(resp.StatusCode, slurp)
	}

	var gr gmResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("decoding gemini response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}
	var sb strings.Builder
	for _, part := range gr.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return json.RawMessage(text), nil
}

func upstreamError(status int, body []byte) *Error {
	e := &Error{
		Provider: "gemini",
		Status:   status,
		Body:     string(body),
	}
	var env gmErrorEnvelope
	if json.Unmarshal(body, &env) == nil {
		e.Code = env.Error.Status
		e.Message = env.Error.Message
		for _, d := range env.Error.Details {
			if d.Reason != "" {
				e.Cause = &Cause{Code: d.Reason}
				break
			}
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
