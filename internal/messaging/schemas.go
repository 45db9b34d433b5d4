package messaging

import (
	"encoding/json"
	"time"

	"github.com/Aidin1998/investex/pkg/models"
	"github.com/google/uuid"
)

// MessageType defines the type of message being sent
type MessageType string

const (
	MsgUserNotification  MessageType = "notification.user"
	MsgAdminNotification MessageType = "notification.admin"
)

// BaseMessage contains common fields for all messages
type BaseMessage struct {
	MessageID string      `json:"message_id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Version   string      `json:"version"`
	Source    string      `json:"source"`
}

// NotificationMessage is the broker representation of a stored notification
type NotificationMessage struct {
	BaseMessage
	NotificationID uuid.UUID       `json:"notification_id"`
	RecipientID    *uuid.UUID      `json:"recipient_id,omitempty"`
	Category       string          `json:"category"`
	Message        string          `json:"message"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewNotificationMessage converts n into its broker message.
func NewNotificationMessage(n *models.Notification) NotificationMessage {
	msgType := MsgUserNotification
	if n.Broadcast() {
		msgType = MsgAdminNotification
	}

	msg := NotificationMessage{
		BaseMessage: BaseMessage{
			MessageID: uuid.NewString(),
			Type:      msgType,
			Timestamp: time.Now().UTC(),
			Version:   "1",
			Source:    "investex",
		},
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Category:       n.Category,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt,
	}
	if n.Payload != "" && json.Valid([]byte(n.Payload)) {
		msg.Payload = json.RawMessage(n.Payload)
	}
	return msg
}

// Key partitions user notifications by recipient and groups broadcasts.
func (m NotificationMessage) Key() string {
	if m.RecipientID == nil {
		return "admins"
	}
	return m.RecipientID.String()
}
