package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SignatureHeader carries the HMAC of an inbound webhook body
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// Message is one inbound message extracted from a webhook envelope
type Message struct {
	ID   string
	From string
	Type string
	Text string
}

type envelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Type string `json:"type"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text,omitempty"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseWebhook extracts messages from a webhook body. Status callbacks
// (delivered, read) carry no messages and yield an empty slice.
func ParseWebhook(body []byte) ([]Message, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("invalid webhook body: %w", err)
	}

	var out []Message
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				msg := Message{ID: m.ID, From: m.From, Type: m.Type}
				if m.Text != nil {
					msg.Text = m.Text.Body
				}
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

// VerifySignature checks a "sha256=<hex>" header against the body
func VerifySignature(appSecret string, body []byte, header string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the signature header value for body
func Sign(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
