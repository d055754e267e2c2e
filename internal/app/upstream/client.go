package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

var ErrNoClientSecret = errors.New("session response has no client secret")

// APIError is a non-success reply from the realtime API.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

// Client talks to the realtime API on behalf of browserless endpoints: it mints
// an ephemeral key and trades an SDP offer for an answer.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	Voice   string
	HTTP    *http.Client
	Logger  zerolog.Logger
}

func New(baseURL, apiKey, model, voice string, logger zerolog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		Voice:   voice,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Logger:  logger.With().Str("module", "upstream").Logger(),
	}
}

type sessionRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice,omitempty"`
}

type sessionResponse struct {
	ID           string `json:"id"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// EphemeralKey creates a realtime session and returns its client secret.
func (c *Client) EphemeralKey(ctx context.Context) (string, error) {
	body, err := json.Marshal(sessionRequest{Model: c.Model, Voice: c.Voice})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req, "create session", http.StatusOK)
	if err != nil {
		return "", err
	}
	var out sessionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}
	if out.ClientSecret.Value == "" {
		return "", ErrNoClientSecret
	}
	c.Logger.Debug().Str("session_id", out.ID).Msg("ephemeral key issued")
	return out.ClientSecret.Value, nil
}

// Exchange posts offerSDP with a fresh ephemeral key and returns the answer SDP.
func (c *Client) Exchange(ctx context.Context, offerSDP string) (string, error) {
	key, err := c.EphemeralKey(ctx)
	if err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/realtime?model=%s", c.BaseURL, url.QueryEscape(c.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(offerSDP))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/sdp")

	raw, err := c.do(req, "exchange sdp", http.StatusOK, http.StatusCreated)
	if err != nil {
		return "", err
	}
	c.Logger.Info().Str("model", c.Model).Int("answer_len", len(raw)).Msg("sdp exchanged")
	return string(raw), nil
}

func (c *Client) do(req *http.Request, op string, ok ...int) ([]byte, error) {
	httpc := c.HTTP
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, code := range ok {
		if resp.StatusCode == code {
			return raw, nil
		}
	}
	return nil, &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}
