package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-autorecorder/internal/util"
)

// Webhook event names.
const (
	EventRecordingSaved  = "recording_saved"
	EventUploadAbandoned = "upload_abandoned"
)

// webhookTimeout bounds a single webhook delivery.
const webhookTimeout = 10 * time.Second

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event     string `json:"event"`
	Source    string `json:"source"`
	Filename  string `json:"filename,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Seconds   int    `json:"seconds,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// SendRecordingSavedWebhook notifies the webhook that a recording was kept.
func SendRecordingSavedWebhook(webhookURL, sessionID, filename string, seconds int) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     EventRecordingSaved,
		Source:    AppName,
		Filename:  filename,
		SessionID: sessionID,
		Seconds:   seconds,
		Timestamp: timestampUTC(),
	})
}

// SendUploadAbandonedWebhook notifies the webhook that a file will not be uploaded.
func SendUploadAbandonedWebhook(webhookURL, filename string, attempts int, lastError string) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     EventUploadAbandoned,
		Source:    AppName,
		Filename:  filename,
		Attempts:  attempts,
		Error:     lastError,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
