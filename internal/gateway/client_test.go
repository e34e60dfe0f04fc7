package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "key_id", user)
		require.Equal(t, "key_secret", pass)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"order_123","amount":8500,"currency":"INR","receipt":"topup_1"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient("razorpay", srv.URL, "key_id", "key_secret", "wh_secret", 5*time.Second)

	order, err := client.CreateOrder(context.Background(), OrderRequest{
		AmountCents: 8500,
		Currency:    "INR",
		Receipt:     "topup_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_123", order.OrderID)
	assert.Equal(t, int64(8500), order.AmountCents)
	assert.NotEmpty(t, order.Raw)
}

func TestCreateOrder_GatewayRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"description":"amount too small"}}`))
	}))
	defer srv.Close()

	client := NewHTTPClient("razorpay", srv.URL, "key_id", "key_secret", "wh_secret", 5*time.Second)

	_, err := client.CreateOrder(context.Background(), OrderRequest{AmountCents: 1, Currency: "INR"})
	assert.ErrorIs(t, err, ErrOrderRejected)
}

func TestCreateOrder_ReceiptTrimmed(t *testing.T) {
	var gotReceipt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OrderRequest
		_ = jsonDecode(r, &req)
		gotReceipt = req.Receipt
		w.Write([]byte(`{"id":"order_1","amount":100,"currency":"INR"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient("razorpay", srv.URL, "k", "s", "w", 5*time.Second)

	long := strings.Repeat("r", 64)
	_, err := client.CreateOrder(context.Background(), OrderRequest{AmountCents: 100, Currency: "INR", Receipt: long})
	require.NoError(t, err)
	assert.Len(t, gotReceipt, ReceiptMaxLen)
}

func TestVerifyWebhookSignature(t *testing.T) {
	client := NewHTTPClient("razorpay", "", "key_id", "key_secret", "wh_secret", time.Second)

	body := []byte(`{"event":"payment.captured"}`)

	assert.NoError(t, client.VerifyWebhookSignature(body, sign(string(body), "wh_secret")))
	assert.ErrorIs(t, client.VerifyWebhookSignature(body, sign(string(body), "wrong")), ErrSignatureMismatch)
	assert.ErrorIs(t, client.VerifyWebhookSignature(body, ""), ErrSignatureMismatch)
	// webhook secret, never the API secret
	assert.ErrorIs(t, client.VerifyWebhookSignature(body, sign(string(body), "key_secret")), ErrSignatureMismatch)
}

func TestVerifyWebhookSignature_EmptySecretNeverVerifies(t *testing.T) {
	client := NewHTTPClient("razorpay", "", "key_id", "key_secret", "", time.Second)

	body := []byte(`{"event":"payment.captured"}`)

	// An HMAC computed over the empty key must not pass.
	assert.ErrorIs(t, client.VerifyWebhookSignature(body, sign(string(body), "")), ErrMissingSecret)
	assert.ErrorIs(t, client.VerifyWebhookSignature(body, ""), ErrMissingSecret)
}

func TestVerifyPaymentSignature(t *testing.T) {
	client := NewHTTPClient("razorpay", "", "key_id", "key_secret", "wh_secret", time.Second)

	good := sign("order_1|pay_1", "key_secret")
	assert.NoError(t, client.VerifyPaymentSignature("order_1", "pay_1", good))
	assert.ErrorIs(t, client.VerifyPaymentSignature("order_1", "pay_2", good), ErrSignatureMismatch)
}

func jsonDecode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
