// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
)

// Headers injected on every delivery. They always win over subscription extra
// headers.
const (
	HeaderWebhookSignature = "X-Webhook-Signature"
	HeaderWebhookEvent     = "X-Webhook-Event"
	HeaderWebhookID        = "X-Webhook-Id"
	HeaderWebhookDelivery  = "X-Webhook-Delivery"
	HeaderWebhookTest      = "X-Webhook-Test"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
)

// WebhookEnvelope is the payload sent to subscribers. Field declaration order
// fixes the wire order of the JSON object.
type WebhookEnvelope struct {
	Event     EventType              `json:"event"`
	Data      map[string]interface{} `json:"data"`
	Timestamp string                 `json:"timestamp"`
	TeamID    string                 `json:"teamId"`
	WebhookID string                 `json:"webhookId"`
}

// ToJSON serializes the envelope to its canonical wire bytes. Signing and the
// request body must use the same serialization.
func (e *WebhookEnvelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NewWebhookEnvelopeFromReader decodes a json-encoded webhook envelope from
// the given io.Reader.
func NewWebhookEnvelopeFromReader(reader io.Reader) (*WebhookEnvelope, error) {
	envelope := WebhookEnvelope{}
	decoder := json.NewDecoder(reader)
	err := decoder.Decode(&envelope)
	if err != nil && err != io.EOF {
		return nil, err
	}

	return &envelope, nil
}

// SignBody computes the webhook signature header value for a request body:
// the literal prefix "sha256=" followed by the lowercase hex HMAC-SHA-256
// digest of the body under the secret.
func SignBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the signature over the body and compares it to
// the presented header value in constant time. Receivers use the same check.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(SignBody(body, secret)), []byte(signature))
}
