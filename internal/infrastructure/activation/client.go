package activation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client calls the core backend's internal activation API. It implements
// both activation collaborators: subscription creation and points credit.
// The backend deduplicates by payment_id, so a retried call after a
// timeout cannot double-activate.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates an activation API client
func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type subscriptionRequest struct {
	UserID         string `json:"user_id"`
	Plan           string `json:"plan"`
	DurationMonths int    `json:"duration_months"`
	PaymentID      string `json:"payment_id"`
}

type subscriptionResponse struct {
	SubscriptionID string `json:"subscription_id"`
}

// CreateOrUpgrade creates or extends the user's subscription and returns
// the subscription ID.
func (c *Client) CreateOrUpgrade(ctx context.Context, userID, plan string, durationMonths int, paymentID string) (string, error) {
	req := subscriptionRequest{
		UserID:         userID,
		Plan:           plan,
		DurationMonths: durationMonths,
		PaymentID:      paymentID,
	}

	var resp subscriptionResponse
	if err := c.post(ctx, "/internal/v1/subscriptions", req, &resp); err != nil {
		return "", err
	}
	if resp.SubscriptionID == "" {
		return "", fmt.Errorf("activation API returned empty subscription_id")
	}

	c.logger.Info("Subscription activated via backend API",
		zap.String("user_id", userID),
		zap.String("plan", plan),
		zap.String("subscription_id", resp.SubscriptionID))

	return resp.SubscriptionID, nil
}

type pointsRequest struct {
	UserID   string                 `json:"user_id"`
	Amount   int64                  `json:"amount"`
	Reason   string                 `json:"reason"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type pointsResponse struct {
	TransactionID string `json:"transaction_id"`
}

// AddPoints credits points to the user and returns the ledger
// transaction ID.
func (c *Client) AddPoints(ctx context.Context, userID string, amount int64, reason string, metadata map[string]interface{}) (string, error) {
	req := pointsRequest{
		UserID:   userID,
		Amount:   amount,
		Reason:   reason,
		Metadata: metadata,
	}

	var resp pointsResponse
	if err := c.post(ctx, "/internal/v1/points/credit", req, &resp); err != nil {
		return "", err
	}
	if resp.TransactionID == "" {
		return "", fmt.Errorf("activation API returned empty transaction_id")
	}

	c.logger.Info("Points credited via backend API",
		zap.String("user_id", userID),
		zap.Int64("amount", amount),
		zap.String("transaction_id", resp.TransactionID))

	return resp.TransactionID, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to prepare activation request: %w", err)
	}

	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create activation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Error("Activation API request failed",
			zap.String("url", url),
			zap.Error(err))
		return fmt.Errorf("activation API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read activation response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Activation API returned error",
			zap.String("url", url),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(respBody)))
		return fmt.Errorf("activation API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode activation response: %w", err)
	}

	return nil
}
