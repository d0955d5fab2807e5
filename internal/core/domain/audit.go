package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionInitiate AuditAction = "INITIATE"
	AuditActionCallback AuditAction = "CALLBACK"
	AuditActionRedrive  AuditAction = "REDRIVE"
	AuditActionRequery  AuditAction = "REQUERY"

	AuditActionAdminRedrive     AuditAction = "ADMIN_REDRIVE"
	AuditActionAdminRequery     AuditAction = "ADMIN_REQUERY"
	AuditActionCallbackRejected AuditAction = "CALLBACK_REJECTED"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	UserID       *uuid.UUID  `json:"user_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}

// AlertSeverity ranks operator alerts.
type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Alert is an operator notification for a payment needing manual attention.
type Alert struct {
	ID                uuid.UUID     `json:"id"`
	Severity          AlertSeverity `json:"severity"`
	Kind              string        `json:"kind"`
	CheckoutRequestID string        `json:"checkout_request_id"`
	PaymentRequestID  *uuid.UUID    `json:"payment_request_id,omitempty"`
	Message           string        `json:"message"`
	CreatedAt         time.Time     `json:"created_at"`
}
