package models

// Audit kinds emitted by the store layer. Every handoff and approval state
// transition writes exactly one row with one of these kinds, inside the same
// transaction as the transition itself.
const (
	AuditKindEventEnqueued    = "event_enqueued"
	AuditKindEventCompleted   = "event_completed"
	AuditKindEventFailed      = "event_failed"
	AuditKindEventRequeued    = "event_requeued"
	AuditKindEventStaleClaim  = "event_stale_claim_released"
	AuditKindHandoffCreated   = "handoff_created"
	AuditKindHandoffAccepted  = "handoff_accepted"
	AuditKindHandoffDeclined  = "handoff_declined"
	AuditKindHandoffCompleted = "handoff_completed"
	AuditKindHandoffArchived  = "handoff_archived"
	AuditKindApprovalCreated  = "approval_created"
	AuditKindApprovalApproved = "approval_approved"
	AuditKindApprovalRejected = "approval_rejected"
	AuditKindApprovalCanceled = "approval_canceled"
	AuditKindApprovalExpired  = "approval_expired"
	AuditKindFeedbackReceived = "feedback_received"
	AuditKindFeedbackLearned  = "feedback_learned"
)

// Entity type labels used in audit rows.
const (
	EntityIntegrationEvent = "integration_event"
	EntityHandoff          = "handoff"
	EntityApproval         = "approval"
	EntityFeedback         = "feedback"
)

// SystemActorID marks transitions performed by sweeps and internal machinery
// rather than a human or a named agent.
const SystemActorID = "system"
