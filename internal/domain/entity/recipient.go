package entity

import "time"

// PhoneNumber is one registered number of a recipient.
type PhoneNumber struct {
	Number   string
	Primary  bool
	Category string
	Label    string
}

// Recipient is a guest as seen by the delivery engine.
type Recipient struct {
	ID      int64
	EventID int64
	Name    string
	Email   string
	Phones  []PhoneNumber
}

// HasEmail reports whether the recipient has a mail address on file.
func (r *Recipient) HasEmail() bool {
	return r != nil && r.Email != ""
}

// HasPhones reports whether at least one phone number is registered.
func (r *Recipient) HasPhones() bool {
	return r != nil && len(r.Phones) > 0
}

// PrimaryPhone returns the primary number, or the first number when none is flagged.
func (r *Recipient) PrimaryPhone() (PhoneNumber, bool) {
	if r == nil || len(r.Phones) == 0 {
		return PhoneNumber{}, false
	}
	for _, p := range r.Phones {
		if p.Primary {
			return p, true
		}
	}
	return r.Phones[0], true
}

// FindPhone returns the registered phone matching number.
func (r *Recipient) FindPhone(number string) (PhoneNumber, bool) {
	if r == nil {
		return PhoneNumber{}, false
	}
	for _, p := range r.Phones {
		if p.Number == number {
			return p, true
		}
	}
	return PhoneNumber{}, false
}

// DisplayNameFor returns the name shown for a fanned-out copy addressed to p.
func (r *Recipient) DisplayNameFor(p PhoneNumber) string {
	if p.Label != "" {
		return p.Label
	}
	return r.Name
}

// Event carries channel configuration and the display text used by template substitution.
type Event struct {
	ID       int64
	Name     string
	StartsAt time.Time
	Location string
	HostName string

	ChatCloudEnabled bool
	ChatCloudToken   string
	ChatCloudPhoneID string
}

// ChatCloudReady reports whether the cloud chat-app API is enabled and has credentials.
func (e *Event) ChatCloudReady() bool {
	return e != nil && e.ChatCloudEnabled && e.ChatCloudToken != "" && e.ChatCloudPhoneID != ""
}

// ContentType of an invitation.
type ContentType string

const (
	ContentText     ContentType = "TEXT"
	ContentTemplate ContentType = "TEMPLATE"
)

// Invitation is the message an event sends to its guests.
type Invitation struct {
	ID           int64
	EventID      int64
	Title        string
	Body         string
	ContentType  ContentType
	TemplateName string
}

// RequiresTemplate reports whether the invitation can only be sent through a named template.
func (i *Invitation) RequiresTemplate() bool {
	return i.ContentType == ContentTemplate
}

// Notice is the in-app record of a delivery outcome shown in the UI.
type Notice struct {
	ID          string
	MessageID   string
	RecipientID int64
	EventID     int64
	Title       string
	Body        string
	Channel     Channel
	Status      string
	Error       string
	CreatedAt   time.Time
}
