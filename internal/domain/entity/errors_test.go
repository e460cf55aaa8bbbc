package entity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "priority", Message: "must be between 1 and 10"}
	assert.Equal(t, "validation error on field 'priority': must be between 1 and 10", err.Error())
}

func TestValidationError_MatchesSentinel(t *testing.T) {
	wrapped := fmt.Errorf("Enqueue: %w", &ValidationError{Field: "recipient_id", Message: "required"})

	assert.True(t, errors.Is(wrapped, ErrValidationFailed))

	var ve *ValidationError
	assert.True(t, errors.As(wrapped, &ve))
	assert.Equal(t, "recipient_id", ve.Field)
}

func TestSentinelErrors_Distinct(t *testing.T) {
	all := []error{ErrNotFound, ErrInvalidInput, ErrValidationFailed, ErrAlreadyExists}
	for i := range all {
		for j := range all {
			if i != j {
				assert.False(t, errors.Is(all[i], all[j]), "%v should not match %v", all[i], all[j])
			}
		}
	}
}
