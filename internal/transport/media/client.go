package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"livesession/internal/model"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Client talks to an external real-time media provider over its REST API.
// It implements service.Transport.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewClient creates a media provider client
func NewClient(baseURL, apiKey string) *Client {
	if apiKey == "" {
		log.Println("Warning: media provider API key not set")
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    200 * time.Millisecond,
	}
}

type tokenRequest struct {
	Identity string `json:"identity"`
	Role     string `json:"role"`
	CanPub   bool   `json:"canPublish"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// APIError is a non-retryable error response from the provider
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("media provider error %d: %s", e.Status, e.Body)
}

// doRequest performs an HTTP request, retrying 429 and 5xx with doubling
// backoff. It gives up as soon as ctx is done.
func (c *Client) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff << (attempt - 1)
			log.Printf("[Media] Retry %d/%d for %s %s in %v", attempt, c.maxRetries-1, method, path, wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &APIError{Status: resp.StatusCode, Body: string(respBody)}
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
		}
		return respBody, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func roomPath(sessionID string) string {
	return "/rooms/" + url.PathEscape(sessionID)
}

// IssueJoinToken asks the provider for a room token for userID
func (c *Client) IssueJoinToken(ctx context.Context, sessionID, userID string, role model.Role) (string, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, roomPath(sessionID)+"/tokens", tokenRequest{
		Identity: userID,
		Role:     string(role),
		CanPub:   role == model.RolePresenter,
	})
	if err != nil {
		return "", err
	}

	var tr tokenResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.Token == "" {
		return "", fmt.Errorf("media provider returned an empty token")
	}
	return tr.Token, nil
}

// DropParticipant removes userID from the provider's room. A participant
// the provider no longer knows about counts as dropped.
func (c *Client) DropParticipant(ctx context.Context, sessionID, userID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, roomPath(sessionID)+"/participants/"+url.PathEscape(userID), nil)
	return ignoreNotFound(err)
}

// DropAllParticipants closes the provider's room
func (c *Client) DropAllParticipants(ctx context.Context, sessionID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, roomPath(sessionID), nil)
	return ignoreNotFound(err)
}

func ignoreNotFound(err error) error {
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}
