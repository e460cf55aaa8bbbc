package delivery

import (
	"guest-delivery/internal/domain/entity"
)

// Envelope is a request together with the directory records providers need to address it.
// Recipient is never nil once the service has built the envelope; Event may be nil.
type Envelope struct {
	Request   entity.DeliveryRequest
	Recipient *entity.Recipient
	Event     *entity.Event
}

// withRequest returns a copy of e carrying req.
func (e Envelope) withRequest(req entity.DeliveryRequest) Envelope {
	e.Request = req
	return e
}

// Phone is the number a fanned-out copy is addressed to, or the recipient's primary
// number when the envelope was not fanned out.
func (e Envelope) Phone() string {
	if d := e.Request.Destination; d != nil && d.Phone != "" {
		return d.Phone
	}
	if p, ok := e.Recipient.PrimaryPhone(); ok {
		return p.Number
	}
	return ""
}

// DisplayName is the name shown to the destination.
func (e Envelope) DisplayName() string {
	if d := e.Request.Destination; d != nil && d.DisplayName != "" {
		return d.DisplayName
	}
	if e.Recipient != nil {
		return e.Recipient.Name
	}
	return ""
}

// Text renders title and body as one plain-text message.
func (e Envelope) Text() string {
	switch {
	case e.Request.Title == "":
		return e.Request.Body
	case e.Request.Body == "":
		return e.Request.Title
	default:
		return e.Request.Title + "\n\n" + e.Request.Body
	}
}
