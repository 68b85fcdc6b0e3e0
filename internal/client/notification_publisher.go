package client

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes approval workflow events to NATS for
// consumption by the platform notification service, which owns outbound
// e-mail delivery.
//
// Subject convention: <prefix>.<event_type>
// Event types: approval_required, approval_approved, approval_rejected,
//              approval_returned, approval_auto_approved
//
// All publish operations are non-fatal — errors are logged but never
// propagated to the caller, so notification failures never interrupt
// approval operations.
type NotificationPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
	log           zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventID      string         `json:"event_id"`
	EventType    string         `json:"event_type"`
	CompanyID    string         `json:"company_id"`
	ActorUserID  int64          `json:"actor_user_id"`
	Recipients   []int64        `json:"recipients"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	ActionURL    string         `json:"action_url,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection disables publishing.
func NewNotificationPublisher(conn *nats.Conn, subjectPrefix string, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, subjectPrefix: subjectPrefix, log: log}
}

// PublishApprovalEvent publishes an approval workflow event.
func (p *NotificationPublisher) PublishApprovalEvent(eventType, companyID string, actorUserID int64, recipients []int64, instanceID string, payload map[string]any) {
	if p.conn == nil {
		return
	}
	if len(recipients) == 0 {
		return
	}

	event := &NotificationEvent{
		EventID:      uuid.New().String(),
		EventType:    eventType,
		CompanyID:    companyID,
		ActorUserID:  actorUserID,
		Recipients:   recipients,
		ResourceType: "workflow_instance",
		ResourceID:   instanceID,
		ActionURL:    fmt.Sprintf("/approvals/%s", instanceID),
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("instance_id", instanceID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("instance_id", instanceID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
