package delivery

import "errors"

// Sentinel errors for delivery operations.
var (
	// ErrNoPhoneNumbers is returned when a phone-addressed channel is chosen for a recipient
	// without registered numbers. The matching result carries the message "No phone numbers".
	ErrNoPhoneNumbers = errors.New("no phone numbers")

	// ErrNoProvider indicates that no provider is registered for the requested channel.
	ErrNoProvider = errors.New("no provider registered for channel")

	// ErrRecipientNotFound indicates that the recipient directory has no such recipient.
	ErrRecipientNotFound = errors.New("recipient not found")
)

// noPhoneNumbersMessage is the error text of a fan-out that had nothing to fan out to.
const noPhoneNumbersMessage = "No phone numbers"
