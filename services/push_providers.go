package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/travelhub/crm-escalation/db"
)

const (
	ProviderLog   = "log"
	ProviderFCM   = "fcm"
	ProviderRelay = "relay"
)

// Default notification sound (used when user hasn't configured custom sound)
const DefaultNotificationSound = "alert.caf"

type PushProviderConfig struct {
	Kind            string
	CredentialsFile string
	Relay           RelayConfig
}

// NewPushProvider builds the configured provider. FCM falls back to the log provider when the
// Firebase app cannot be initialised, matching how the API process degrades without credentials.
func NewPushProvider(ctx context.Context, cfg PushProviderConfig) (PushProvider, error) {
	switch cfg.Kind {
	case "", ProviderLog:
		return LogProvider{}, nil
	case ProviderFCM:
		p, err := NewFCMProvider(ctx, cfg.CredentialsFile)
		if err != nil {
			log.Printf("Push: Firebase messaging not initialized: %v (falling back to log provider)", err)
			return LogProvider{}, nil
		}
		return p, nil
	case ProviderRelay:
		if !cfg.Relay.Enabled() {
			return nil, fmt.Errorf("relay push provider requires url, token and instance id")
		}
		return NewRelayProvider(cfg.Relay), nil
	default:
		return nil, fmt.Errorf("unknown push provider %q", cfg.Kind)
	}
}

// ============================================================================
// LOG PROVIDER
// ============================================================================

// LogProvider only records the intent to push.
type LogProvider struct{}

func (LogProvider) Name() string { return ProviderLog }

func (LogProvider) Send(ctx context.Context, userID string, tokens []string, msg PushMessage) ([]string, error) {
	log.Printf("Push: [log] user=%s devices=%d title=%q", userID, len(tokens), msg.Title)
	return nil, nil
}

// ============================================================================
// FCM PROVIDER
// ============================================================================

type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type FCMProvider struct {
	client multicastSender
}

func NewFCMProvider(ctx context.Context, credentialsFile string) (*FCMProvider, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging: %w", err)
	}

	log.Println("Push: Direct Firebase messaging initialized")
	return &FCMProvider{client: client}, nil
}

func (p *FCMProvider) Name() string { return ProviderFCM }

// Send multicasts to all tokens. The call fails only when no token accepted the message.
func (p *FCMProvider) Send(ctx context.Context, userID string, tokens []string, msg PushMessage) ([]string, error) {
	response, err := p.client.SendEachForMulticast(ctx, buildMulticast(tokens, msg))
	if err != nil {
		return nil, fmt.Errorf("failed to send multicast FCM message: %w", err)
	}

	var unregistered []string
	var lastErr error
	for i, resp := range response.Responses {
		if resp.Success {
			continue
		}
		lastErr = resp.Error
		if messaging.IsUnregistered(resp.Error) {
			unregistered = append(unregistered, tokens[i])
		}
	}

	log.Printf("Push: FCM sent to user %s (Success: %d, Failed: %d)", userID, response.SuccessCount, response.FailureCount)

	if response.SuccessCount == 0 && lastErr != nil {
		return unregistered, fmt.Errorf("all %d FCM deliveries failed: %w", len(tokens), lastErr)
	}
	return unregistered, nil
}

func buildMulticast(tokens []string, msg PushMessage) *messaging.MulticastMessage {
	androidPriority := "normal"
	notificationPriority := messaging.PriorityDefault
	if isHighPriority(msg.Priority) {
		androidPriority = "high"
		notificationPriority = messaging.PriorityHigh
	}

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: androidPriority,
			Notification: &messaging.AndroidNotification{
				Icon:         "ic_notification",
				Color:        getColorByPriority(msg.Priority),
				Sound:        "default",
				ChannelID:    "crm_escalations",
				Priority:     notificationPriority,
				DefaultSound: true,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: msg.Title,
						Body:  msg.Body,
					},
					Badge: intPtr(1),
					Sound: DefaultNotificationSound,
				},
			},
		},
	}
}

// ============================================================================
// CLOUD RELAY PROVIDER
// ============================================================================

type RelayConfig struct {
	URL        string
	Token      string
	InstanceID string
}

func (c RelayConfig) Enabled() bool {
	return c.URL != "" && c.Token != "" && c.InstanceID != ""
}

// CloudRelayNotification represents the notification payload for cloud relay
type CloudRelayNotification struct {
	InstanceID   string                 `json:"instance_id"`
	UserID       string                 `json:"user_id"`
	Notification CloudRelayNotifPayload `json:"notification"`
}

type CloudRelayNotifPayload struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Priority string            `json:"priority"`
	Sound    string            `json:"sound,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

type CloudRelayResponse struct {
	NotificationID string `json:"notification_id"`
	Status         string `json:"status"`
	DevicesCount   int    `json:"devices_count"`
	Error          string `json:"error,omitempty"`
}

// RelayProvider forwards pushes to the notification gateway, which owns the device tokens on its
// side; the local tokens only gate whether the user is reachable at all.
type RelayProvider struct {
	cfg    RelayConfig
	client *http.Client
}

func NewRelayProvider(cfg RelayConfig) *RelayProvider {
	log.Printf("Push: Cloud relay configured (URL: %s, Instance: %s)", cfg.URL, cfg.InstanceID)
	return &RelayProvider{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *RelayProvider) Name() string { return ProviderRelay }

func (p *RelayProvider) Send(ctx context.Context, userID string, tokens []string, msg PushMessage) ([]string, error) {
	priority := "normal"
	if isHighPriority(msg.Priority) {
		priority = "high"
	}

	payload := CloudRelayNotification{
		InstanceID: p.cfg.InstanceID,
		UserID:     userID,
		Notification: CloudRelayNotifPayload{
			Title:    msg.Title,
			Body:     msg.Body,
			Priority: priority,
			Sound:    DefaultNotificationSound,
			Data:     msg.Data,
		},
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cloud relay payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/api/gateway/notifications/send", bytes.NewBuffer(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud relay request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send to cloud relay: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cloud relay error (status %d): %s", resp.StatusCode, string(body))
	}

	var relayResp CloudRelayResponse
	if err := json.Unmarshal(body, &relayResp); err != nil {
		log.Printf("Push: Could not parse cloud relay response: %v", err)
	} else {
		log.Printf("Push: Cloud relay notification sent: ID=%s, Status=%s, Devices=%d",
			relayResp.NotificationID, relayResp.Status, relayResp.DevicesCount)
	}
	return nil, nil
}

// Helper functions
func isHighPriority(p db.NotificationPriority) bool {
	switch p {
	case db.PriorityHigh, db.PriorityUrgent, db.PriorityCritical:
		return true
	default:
		return false
	}
}

func getColorByPriority(p db.NotificationPriority) string {
	switch p {
	case db.PriorityCritical:
		return "#FF0000" // Red
	case db.PriorityUrgent:
		return "#FF8C00" // Orange
	case db.PriorityHigh:
		return "#FFD700" // Yellow
	case db.PriorityLow:
		return "#32CD32" // Green
	default:
		return "#2196F3" // Blue
	}
}

func intPtr(i int) *int {
	return &i
}
