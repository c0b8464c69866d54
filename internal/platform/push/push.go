// Package push delivers push messages to registered device addresses
// through an Expo-compatible HTTP provider.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sender is the interface for delivering a push message to a device.
type Sender interface {
	Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error
}

// message is the Expo push API request shape.
type message struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// HTTPSender posts messages to an Expo-compatible push endpoint.
type HTTPSender struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

func NewHTTPSender(url string, timeout time.Duration, logger zerolog.Logger) *HTTPSender {
	return &HTTPSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (s *HTTPSender) Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	payload, err := json.Marshal(message{To: deviceToken, Title: title, Body: body, Data: data})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("push provider returned %d", resp.StatusCode)
	}
	return nil
}

// Call records one delivery attempt made through a MockSender.
type Call struct {
	DeviceToken string
	Title       string
	Body        string
	Data        map[string]string
}

// MockSender is a test double for Sender.
type MockSender struct {
	mu    sync.Mutex
	calls []Call
	Err   error
}

func (m *MockSender) Send(_ context.Context, deviceToken, title, body string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.calls = append(m.calls, Call{DeviceToken: deviceToken, Title: title, Body: body, Data: data})
	return nil
}

func (m *MockSender) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
