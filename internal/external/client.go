package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lateshift-app/afterhours-server/internal/config"
)

// CoreClient talks to the main application's internal API and implements
// every collaborator interface the engine consumes.
type CoreClient struct {
	baseURL string
	token   string
	client  *http.Client
}

var (
	_ Eligibility    = (*CoreClient)(nil)
	_ BlockChecker   = (*CoreClient)(nil)
	_ PermanentStore = (*CoreClient)(nil)
	_ Notifier       = (*CoreClient)(nil)
)

func NewCoreClient(baseURL, token string) *CoreClient {
	return &CoreClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: config.CoreAPITimeout},
	}
}

func (c *CoreClient) IsEligible(ctx context.Context, userID string) (EligibilityResult, error) {
	var result EligibilityResult
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/internal/users/%s/eligibility", userID), nil, &result)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("eligibility check: %w", err)
	}
	return result, nil
}

func (c *CoreClient) IsBlocked(ctx context.Context, userA, userB string) (bool, error) {
	var result struct {
		Blocked bool `json:"blocked"`
	}
	path := fmt.Sprintf("/internal/blocks?userA=%s&userB=%s", userA, userB)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return false, fmt.Errorf("block check: %w", err)
	}
	return result.Blocked, nil
}

func (c *CoreClient) CreateRelationship(ctx context.Context, userA, userB string) (string, error) {
	body := map[string]string{"userA": userA, "userB": userB}
	var result struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/internal/relationships", body, &result); err != nil {
		return "", fmt.Errorf("create relationship: %w", err)
	}
	return result.ID, nil
}

func (c *CoreClient) AppendMessage(ctx context.Context, permanentID, senderID, body string, createdAt time.Time) error {
	payload := map[string]any{
		"senderId":  senderID,
		"body":      body,
		"createdAt": createdAt.Format(time.RFC3339Nano),
	}
	path := fmt.Sprintf("/internal/relationships/%s/messages", permanentID)
	if err := c.doJSON(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (c *CoreClient) Notify(ctx context.Context, userID, eventType string, payload any) {
	body := map[string]any{
		"userId":    userID,
		"eventType": eventType,
		"payload":   payload,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/internal/notifications", body, nil); err != nil {
		log.Warn().Err(err).
			Str("userId", userID).
			Str("eventType", eventType).
			Msg("notification delivery failed")
	}
}

func (c *CoreClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	reqBody := &bytes.Buffer{}
	if body != nil {
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("core api %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
