package models

import (
	"encoding/json"
	"time"
)

// ID Strategy:
// - Audit log entries use int64 (monotonic ordering, auto-increment)
// - Events, handoffs, approvals, feedback use string (distributed generation,
//   e.g., "evt_1234567890_a3f9") so webhook workers on separate hosts can
//   create records without coordinating.

// Channel identifies an inbound/outbound communication surface.
type Channel string

// Channel constants.
const (
	ChannelChat     Channel = "chat"
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelCalendar Channel = "calendar"
)

// IsValid returns true for a recognized channel.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelChat, ChannelEmail, ChannelSMS, ChannelCalendar:
		return true
	}
	return false
}

// EventStatus is the processing state of a queued integration event.
type EventStatus string

// Integration event status constants.
const (
	EventStatusPending    EventStatus = "pending"
	EventStatusProcessing EventStatus = "processing"
	EventStatusCompleted  EventStatus = "completed"
	EventStatusFailed     EventStatus = "failed"
)

// IsTerminal returns true once the event has finished processing.
func (s EventStatus) IsTerminal() bool {
	return s == EventStatusCompleted || s == EventStatusFailed
}

// IntegrationEvent is an inbound occurrence from a channel, retained for audit.
// Events are never deleted; failed events stay queryable until requeued.
type IntegrationEvent struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Channel   Channel         `json:"channel"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Status    EventStatus     `json:"status"`
	AgentID   string          `json:"agent_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Attempt   int             `json:"attempt"`
	ClaimedAt *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HandoffStatus is the state of a conversation ownership transfer.
type HandoffStatus string

// Handoff status constants. Transitions are one-directional:
// pending -> accepted|declined, accepted -> completed.
const (
	HandoffStatusPending   HandoffStatus = "pending"
	HandoffStatusAccepted  HandoffStatus = "accepted"
	HandoffStatusDeclined  HandoffStatus = "declined"
	HandoffStatusCompleted HandoffStatus = "completed"
)

// IsTerminal returns true when no further transition is legal.
func (s HandoffStatus) IsTerminal() bool {
	return s == HandoffStatusDeclined || s == HandoffStatusCompleted
}

// AgentHandoff is a single point-in-time offer of work from one agent to
// another (or to a human). A declined or stale handoff is never reopened;
// the correct action is to create a new one.
type AgentHandoff struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenant_id"`
	FromAgentID    string        `json:"from_agent_id"`
	ToAgentID      string        `json:"to_agent_id"`
	ConversationID string        `json:"conversation_id"`
	Channel        Channel       `json:"channel"`
	ChannelRefID   string        `json:"channel_ref_id,omitempty"`
	Reason         string        `json:"reason"`
	ContextSummary string        `json:"context_summary,omitempty"`
	KeyPoints      []string      `json:"key_points,omitempty"`
	Status         HandoffStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	AcceptedAt     *time.Time    `json:"accepted_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// ApprovalStatus is the state of a gated-action approval request.
type ApprovalStatus string

// Approval status constants. Once status leaves pending the row is immutable.
const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
	ApprovalStatusExpired  ApprovalStatus = "expired"
)

// AgentApprovalRequest gates a sensitive agent-initiated action behind a
// human decision, with expiry.
type AgentApprovalRequest struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	AgentID         string          `json:"agent_id"`
	ApproverID      string          `json:"approver_id,omitempty"`
	RequestedAction json.RawMessage `json:"requested_action"`
	Status          ApprovalStatus  `json:"status"`
	ResponseNote    string          `json:"response_note,omitempty"`
	ExpiresAt       time.Time       `json:"expires_at"`
	CreatedAt       time.Time       `json:"created_at"`
	RespondedAt     *time.Time      `json:"responded_at,omitempty"`
}

// IsValid reports whether the gated action may still proceed to approval.
// Expiry is checked independently of the sweep: a request past expires_at is
// invalid even while its stored status is still pending.
func (r *AgentApprovalRequest) IsValid(now time.Time) bool {
	return r.Status == ApprovalStatusPending && now.Before(r.ExpiresAt)
}

// IsApproved reports whether the gated action may execute.
func (r *AgentApprovalRequest) IsApproved() bool {
	return r.Status == ApprovalStatusApproved
}

// UrgencyLevel orders approval requests for notification purposes only; it
// never affects gating logic.
type UrgencyLevel string

// Urgency constants.
const (
	UrgencyLow      UrgencyLevel = "low"
	UrgencyMedium   UrgencyLevel = "medium"
	UrgencyHigh     UrgencyLevel = "high"
	UrgencyCritical UrgencyLevel = "critical"
)

// UrgencyFor maps time remaining until expiry to an urgency level.
// Thresholds: <=1h critical, <=4h high, <=12h medium, else low.
// An already-expired request is critical.
func UrgencyFor(expiresAt, now time.Time) UrgencyLevel {
	remaining := expiresAt.Sub(now)
	switch {
	case remaining <= time.Hour:
		return UrgencyCritical
	case remaining <= 4*time.Hour:
		return UrgencyHigh
	case remaining <= 12*time.Hour:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// MemoryType classifies a stored memory. Instructive types (policy, procedure)
// outrank incidental ones (fact) when similarity ties are close.
type MemoryType string

// Memory type constants.
const (
	MemoryTypePolicy         MemoryType = "policy"
	MemoryTypeProcedure      MemoryType = "procedure"
	MemoryTypePreference     MemoryType = "preference"
	MemoryTypeTeamMember     MemoryType = "team_member"
	MemoryTypeCreator        MemoryType = "creator"
	MemoryTypeProjectPattern MemoryType = "project_pattern"
	MemoryTypeFact           MemoryType = "fact"
)

// MemorySearchResult is a scored candidate returned from a similarity query.
// Ephemeral: produced per query, never persisted by the ranking layer.
type MemorySearchResult struct {
	MemoryID    string     `json:"memory_id,omitempty"`
	MemoryType  MemoryType `json:"memory_type"`
	Content     string     `json:"content"`
	Similarity  float64    `json:"similarity"`
	Confidence  float64    `json:"confidence"`
	Importance  float64    `json:"importance"`
	SubjectType string     `json:"subject_type,omitempty"`
	SubjectID   string     `json:"subject_id,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`

	// RelevanceScore is populated by ranking; zero until ranked.
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// HasSubject reports whether the memory is pinned to a specific subject.
// Subject-less memories are exempt from per-subject diversification caps.
func (m *MemorySearchResult) HasSubject() bool {
	return m.SubjectType != "" && m.SubjectID != ""
}

// FeedbackType classifies a user reaction to an agent response.
type FeedbackType string

// Feedback type constants.
const (
	FeedbackPositive   FeedbackType = "positive"
	FeedbackNegative   FeedbackType = "negative"
	FeedbackCorrection FeedbackType = "correction"
)

// AgentFeedback is a user reaction convertible into a learning record.
// Mutated exactly once, when the processor converts it.
type AgentFeedback struct {
	ID               string       `json:"id"`
	TenantID         string       `json:"tenant_id"`
	AgentID          string       `json:"agent_id"`
	FeedbackType     FeedbackType `json:"feedback_type"`
	Rating           *int         `json:"rating,omitempty"`
	OriginalResponse string       `json:"original_response,omitempty"`
	Correction       string       `json:"correction,omitempty"`
	Processed        bool         `json:"processed"`
	LearningCreated  string       `json:"learning_created,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// AuditEntry is one row of the append-only transition log.
type AuditEntry struct {
	ID         int64           `json:"id"`
	TenantID   string          `json:"tenant_id"`
	Kind       string          `json:"kind"`
	ActorID    string          `json:"actor_id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Message    string          `json:"message"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
