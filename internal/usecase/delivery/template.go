package delivery

import (
	"errors"
	"strings"

	"guest-delivery/internal/domain/entity"
)

// Placeholder tokens understood by the Substitutor.
const (
	TokenGuestName     = "{{guest_name}}"
	TokenGuestEmail    = "{{guest_email}}"
	TokenEventName     = "{{event_name}}"
	TokenEventDate     = "{{event_date}}"
	TokenEventTime     = "{{event_time}}"
	TokenEventLocation = "{{event_location}}"
	TokenHostName      = "{{host_name}}"
)

var errMissingContext = errors.New("placeholders present but recipient or event is unknown")

// Templater fills placeholders in a request's title and body.
type Templater interface {
	Apply(req entity.DeliveryRequest, recipient *entity.Recipient, event *entity.Event) (entity.DeliveryRequest, error)
}

// Substitutor replaces {{token}} placeholders with recipient and event data.
// Unknown tokens are left as written.
type Substitutor struct {
	DateLayout string
	TimeLayout string
}

// NewSubstitutor creates a substitutor with "January 2, 2006" dates and "3:04 PM" times.
func NewSubstitutor() *Substitutor {
	return &Substitutor{DateLayout: "January 2, 2006", TimeLayout: "3:04 PM"}
}

// Apply returns req with placeholders replaced. It fails when the text has placeholders
// but the recipient or event they refer to is missing; callers keep the original text then.
func (s *Substitutor) Apply(req entity.DeliveryRequest, recipient *entity.Recipient, event *entity.Event) (entity.DeliveryRequest, error) {
	if !strings.Contains(req.Title, "{{") && !strings.Contains(req.Body, "{{") {
		return req, nil
	}
	if recipient == nil || event == nil {
		return req, errMissingContext
	}

	pairs := []string{
		TokenGuestName, recipient.Name,
		TokenGuestEmail, recipient.Email,
		TokenEventName, event.Name,
		TokenEventLocation, event.Location,
		TokenHostName, event.HostName,
	}
	if !event.StartsAt.IsZero() {
		pairs = append(pairs,
			TokenEventDate, event.StartsAt.Format(s.DateLayout),
			TokenEventTime, event.StartsAt.Format(s.TimeLayout))
	}
	r := strings.NewReplacer(pairs...)
	req.Title = r.Replace(req.Title)
	req.Body = r.Replace(req.Body)
	return req, nil
}
