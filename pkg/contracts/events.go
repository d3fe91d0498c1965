package contracts

// EventType names a domain event emitted after a successful mutation.
// Events are fire-and-forget; their order is call order.
type EventType string

const (
	EventContextCreated     EventType = "ContextCreated"
	EventMembersAdded       EventType = "MembersAdded"
	EventMembersRemoved     EventType = "MembersRemoved"
	EventApplicationUpdated EventType = "ApplicationUpdated"
	EventEndpointUpdated    EventType = "EndpointUpdated"
	EventCapabilityAdded    EventType = "CapabilityAdded"
	EventCapabilityRevoked  EventType = "CapabilityRevoked"

	EventProposalCreated             EventType = "ProposalCreated"
	EventProposalApproved            EventType = "ProposalApproved"
	EventProposalExecuted            EventType = "ProposalExecuted"
	EventProposalDeleted             EventType = "ProposalDeleted"
	EventApprovalThresholdChanged    EventType = "ApprovalThresholdChanged"
	EventActiveProposalsLimitChanged EventType = "ActiveProposalsLimitChanged"
	EventStorageValueSet             EventType = "StorageValueSet"
	EventExternalCallExecuted        EventType = "ExternalCallExecuted"
	EventValueTransferred            EventType = "ValueTransferred"
)
