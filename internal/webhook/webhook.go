// Package webhook delivers the update feed to a configured endpoint, signing
// each request with HMAC-SHA256 so receivers can authenticate the payload.
package webhook

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
)

// SignatureHeader carries the payload signature as "sha256=<hex>".
const SignatureHeader = "X-Docforge-Signature-256"

// Notifier posts signed JSON payloads to one endpoint. Delivery is one-shot:
// a failure propagates to the caller, there is no queue or retry.
type Notifier struct {
	url    string
	secret []byte
	client *http.Client
}

// New returns a notifier for url signing with secret. A nil client gets a
// 30s-timeout default.
func New(url, secret string, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Notifier{url: url, secret: []byte(secret), client: client}
}

// Sign returns the "sha256=<hex>" HMAC-SHA256 signature of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret, in constant time.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// Send marshals payload and posts it. Any non-2xx response is an error.
func (n *Notifier) Send(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(n.secret, body))
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook endpoint returned %d: %s", resp.StatusCode, b)
	}
	return nil
}
