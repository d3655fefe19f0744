// Package audit provides async publishing of safety-relevant robot
// controller events.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"
)

// EventType identifies the type of audit event.
type EventType string

// Event types.
const (
	EventEStop             EventType = "E_STOP"
	EventModeChanged       EventType = "MODE_CHANGED"
	EventCommunicationLoss EventType = "COMMUNICATION_LOSS"
	EventTrajectoryAborted EventType = "TRAJECTORY_ABORTED"
	EventTrajectoryDone    EventType = "TRAJECTORY_COMPLETED"
)

// Event represents an audit event to be published. Seqno is assigned
// by the Publisher: events travel as independent fire-and-forget POSTs
// and can arrive out of order, so consumers reconstruct the
// controller's event order from it rather than from arrival time.
type Event struct {
	EventType  EventType         `json:"event_type"`
	EndpointID string            `json:"endpoint_id,omitempty"`
	RobotID    string            `json:"robot_id"`
	Seqno      uint64            `json:"seqno,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// HTTPClient interface for HTTP operations (allows mocking).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultTimeout = 5 * time.Second

// Publisher publishes audit events to the gateway.
type Publisher struct {
	gatewayURL string
	robotID    string
	client     HTTPClient
	seq        atomic.Uint64
}

// NewPublisher creates a new audit event publisher.
func NewPublisher(gatewayURL, robotID string) *Publisher {
	return &Publisher{
		gatewayURL: gatewayURL,
		robotID:    robotID,
		client:     &http.Client{Timeout: defaultTimeout},
	}
}

// SetHTTPClient allows setting a custom HTTP client (for testing).
func (p *Publisher) SetHTTPClient(client HTTPClient) {
	p.client = client
}

// Publish sends an audit event to the gateway (async, fire-and-forget).
// Errors are logged but not returned since this is non-blocking.
func (p *Publisher) Publish(event Event) {
	go func() {
		if err := p.publishAsync(event); err != nil {
			log.Printf("audit: failed to publish event %s: %v", event.EventType, err)
		}
	}()
}

// PublishSync sends an audit event synchronously (for testing).
func (p *Publisher) PublishSync(event Event) error {
	return p.publishAsync(event)
}

func (p *Publisher) publishAsync(event Event) error {
	if event.RobotID == "" {
		event.RobotID = p.robotID
	}
	event.Seqno = p.seq.Add(1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Timestamp = event.Timestamp.UTC()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/audit", p.gatewayURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Robot-ID", event.RobotID)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("audit publish failed: status %d", resp.StatusCode)
	}

	return nil
}
