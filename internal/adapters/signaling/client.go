package signaling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// SDPPath is the create-session endpoint on the API server.
const SDPPath = "/openai/sdp"

var ErrEmptyAnswer = errors.New("empty answer sdp")

// OfferRequest is the create-session request body.
type OfferRequest struct {
	OfferSDP string `json:"offer_sdp"`
}

// OfferResponse is the create-session response body.
type OfferResponse struct {
	Message string                    `json:"message,omitempty"`
	Content webrtc.SessionDescription `json:"content"`
	Error   string                    `json:"error,omitempty"`
}

// StatusError is a non-2xx reply from the API server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("signaling: status %d: %s", e.Code, e.Body)
}

// Client exchanges offers with the API server over HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  zerolog.Logger
}

func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Logger:  logger.With().Str("module", "signaling").Logger(),
	}
}

func (c *Client) CreateSession(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	body, err := json.Marshal(OfferRequest{OfferSDP: offer.SDP})
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+SDPPath, bytes.NewReader(body))
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpc := c.HTTP
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return webrtc.SessionDescription{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out OfferResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decode answer: %w", err)
	}
	if out.Content.SDP == "" {
		return webrtc.SessionDescription{}, ErrEmptyAnswer
	}
	if out.Content.Type == 0 {
		out.Content.Type = webrtc.SDPTypeAnswer
	}
	c.Logger.Debug().Str("message", out.Message).Msg("answer received")
	return out.Content, nil
}
