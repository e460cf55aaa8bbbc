package entity

import (
	"time"
)

// Result status values. A recorded-for-manual-delivery result uses Channel.RecordedStatus instead.
const (
	ResultStatusSent   = "SENT"
	ResultStatusFailed = "FAILED"
)

// ManualProviderIDPrefix marks provider ids of sends recorded for manual follow-up.
const ManualProviderIDPrefix = "MANUAL-"

// Destination overrides the recipient's address for a single fanned-out copy of a request.
type Destination struct {
	Phone       string
	DisplayName string
}

// DeliveryRequest is one outbound message to one recipient. It is a value type:
// fan-out works on copies produced by WithDestination.
type DeliveryRequest struct {
	MessageID        string
	Kind             MessageKind
	Title            string
	Body             string
	RecipientID      int64
	EventID          int64
	PreferredChannel Channel
	SenderID         string
	// TemplateName selects a pre-approved chat-app template instead of the free-text body.
	TemplateName string
	// Destination is set only on fanned-out copies.
	Destination *Destination
}

// WithDestination returns a copy of r addressed to a single phone number.
func (r DeliveryRequest) WithDestination(phone, displayName string) DeliveryRequest {
	r.Destination = &Destination{Phone: phone, DisplayName: displayName}
	return r
}

// Validate checks the fields every channel needs.
func (r DeliveryRequest) Validate() error {
	if r.RecipientID <= 0 {
		return &ValidationError{Field: "recipient_id", Message: "recipient is required"}
	}
	if r.Title == "" && r.Body == "" && r.TemplateName == "" {
		return &ValidationError{Field: "body", Message: "title or body is required"}
	}
	if r.PreferredChannel != "" && !r.PreferredChannel.Valid() {
		return &ValidationError{Field: "preferred_channel", Message: "unknown channel"}
	}
	return nil
}

// DestinationAttempt is the outcome of one fanned-out copy.
type DestinationAttempt struct {
	Phone      string
	WasPrimary bool
	Category   string
	Success    bool
	ProviderID string
	Status     string
	Error      string
	Timestamp  time.Time
}

// DeliveryResult is the outcome of a send. Success=false implies Status="FAILED".
type DeliveryResult struct {
	MessageID  string
	Success    bool
	Channel    Channel
	ProviderID string
	Status     string
	Error      string
	Timestamp  time.Time
	// Attempts holds one entry per contacted number when the request was fanned out.
	Attempts []DestinationAttempt
}

// SentResult builds a successful result.
func SentResult(ch Channel, providerID string, at time.Time) DeliveryResult {
	return DeliveryResult{
		Success:    true,
		Channel:    ch,
		ProviderID: providerID,
		Status:     ResultStatusSent,
		Timestamp:  at,
	}
}

// FailedResult builds a failed result carrying errMsg.
func FailedResult(ch Channel, errMsg string, at time.Time) DeliveryResult {
	return DeliveryResult{
		Success:   false,
		Channel:   ch,
		Status:    ResultStatusFailed,
		Error:     errMsg,
		Timestamp: at,
	}
}

// RecordedResult builds the synthetic success returned when a channel has no configured
// provider and the operator is expected to deliver by hand.
func RecordedResult(ch Channel, manualID string, at time.Time) DeliveryResult {
	return DeliveryResult{
		Success:    true,
		Channel:    ch,
		ProviderID: ManualProviderIDPrefix + manualID,
		Status:     ch.RecordedStatus(),
		Timestamp:  at,
	}
}

// Recorded reports whether the result is a manual-follow-up record rather than a real send.
func (r DeliveryResult) Recorded() bool {
	return r.Success && r.Channel != "" && r.Status == r.Channel.RecordedStatus()
}
