package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"offerpay/internal/logger"
)

// HTTPClient talks to a razorpay-style REST gateway. Orders are created with
// basic auth over the API key pair; webhook signatures are verified with a
// separate webhook secret.
type HTTPClient struct {
	provider      string
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	http          *http.Client
}

func NewHTTPClient(provider, baseURL, keyID, keySecret, webhookSecret string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		provider:      provider,
		baseURL:       baseURL,
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		http:          &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Provider() string {
	return c.provider
}

func (c *HTTPClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	req.Receipt = TrimReceipt(req.Receipt)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway order call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Error("gateway rejected order",
			"provider", c.provider,
			"status", resp.StatusCode,
			"receipt", req.Receipt,
		)
		return nil, fmt.Errorf("%w: status %d", ErrOrderRejected, resp.StatusCode)
	}

	order := &Order{}
	if err := json.Unmarshal(raw, order); err != nil {
		return nil, fmt.Errorf("failed to decode gateway order: %w", err)
	}
	order.Raw = raw

	return order, nil
}

func (c *HTTPClient) VerifyWebhookSignature(rawBody []byte, signature string) error {
	return verifyHMAC(rawBody, signature, c.webhookSecret)
}

func (c *HTTPClient) VerifyPaymentSignature(orderID, paymentID, signature string) error {
	payload := orderID + "|" + paymentID
	return verifyHMAC([]byte(payload), signature, c.keySecret)
}

func verifyHMAC(payload []byte, signature, secret string) error {
	// A missing secret must never verify anything; an attacker can compute
	// valid HMACs over the empty key.
	if secret == "" {
		return ErrMissingSecret
	}
	if signature == "" {
		return ErrSignatureMismatch
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
