package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/travelhub/crm-escalation/db"
)

// PushMessage is the provider-neutral payload handed to every push provider.
type PushMessage struct {
	Title    string                  `json:"title"`
	Body     string                  `json:"body"`
	Data     map[string]string       `json:"data,omitempty"`
	Priority db.NotificationPriority `json:"priority,omitempty"`
}

type PushResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	DeviceCount int    `json:"deviceCount"`
}

type MultiPushResult struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// DeviceStore is the slice of db.Store the push adapter needs.
type DeviceStore interface {
	ListActiveDevices(ctx context.Context, userID, platform string) ([]db.PushDevice, error)
	DeactivateTokens(ctx context.Context, tokens []string) error
}

// PushProvider delivers one message to a user's tokens. It returns the tokens the provider
// reported as no longer registered so they can be deactivated.
type PushProvider interface {
	Name() string
	Send(ctx context.Context, userID string, tokens []string, msg PushMessage) (unregistered []string, err error)
}

type PushService struct {
	devices  DeviceStore
	provider PushProvider
	metrics  *Metrics
}

func NewPushService(devices DeviceStore, provider PushProvider, metrics *Metrics) *PushService {
	if provider == nil {
		provider = LogProvider{}
	}
	log.Printf("Push: using %s provider", provider.Name())
	return &PushService{devices: devices, provider: provider, metrics: metrics}
}

// SendToUser resolves the user's active devices, optionally restricted to platform, and hands
// them to the provider. A user without devices is not an error.
func (s *PushService) SendToUser(ctx context.Context, userID string, msg PushMessage, platform string) (PushResult, error) {
	devices, err := s.devices.ListActiveDevices(ctx, userID, platform)
	if err != nil {
		s.metrics.pushResult("error")
		return PushResult{}, fmt.Errorf("failed to resolve devices for user %s: %w", userID, err)
	}
	if len(devices) == 0 {
		s.metrics.pushResult("no_devices")
		return PushResult{Success: false, Message: "No active devices"}, nil
	}

	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		tokens = append(tokens, d.Token)
	}

	unregistered, err := s.provider.Send(ctx, userID, tokens, msg)
	if len(unregistered) > 0 {
		if derr := s.devices.DeactivateTokens(ctx, unregistered); derr != nil {
			log.Printf("Push: failed to deactivate %d stale tokens for user %s: %v", len(unregistered), userID, derr)
		} else {
			log.Printf("Push: deactivated %d stale tokens for user %s", len(unregistered), userID)
		}
	}
	if err != nil {
		s.metrics.pushResult("error")
		return PushResult{}, fmt.Errorf("failed to push to user %s via %s: %w", userID, s.provider.Name(), err)
	}

	s.metrics.pushResult("success")
	return PushResult{
		Success:     true,
		Message:     fmt.Sprintf("Push sent via %s", s.provider.Name()),
		DeviceCount: len(devices),
	}, nil
}

// SendToMultipleUsers dispatches to every user concurrently. One user's failure never affects the
// others; a dispatch counts as failed only when it returned an error.
func (s *PushService) SendToMultipleUsers(ctx context.Context, userIDs []string, msg PushMessage) MultiPushResult {
	result := MultiPushResult{Total: len(userIDs)}
	if len(userIDs) == 0 {
		return result
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, userID := range userIDs {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			err := s.dispatch(ctx, userID, msg)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("Push: dispatch to user %s failed: %v", userID, err)
				result.Failed++
				return
			}
			result.Successful++
		}(userID)
	}
	wg.Wait()

	return result
}

func (s *PushService) dispatch(ctx context.Context, userID string, msg PushMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("push provider panicked: %v", r)
		}
	}()
	_, err = s.SendToUser(ctx, userID, msg, "")
	return err
}
