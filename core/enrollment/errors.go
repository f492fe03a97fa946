package enrollment

import (
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core/learner"
)

var (
	// ErrAlreadyProcessed is returned when the learner is no longer pending. Nothing was changed.
	ErrAlreadyProcessed = errors.New("learner enrollment was already processed")
	// ErrMissingContact is returned when the learner has no usable email to provision an account for.
	ErrMissingContact = errors.New("learner has no usable contact email")
	// ErrDuplicateAccount is returned when an account already uses the learner's email.
	// The learner is left unlinked and must be reconciled manually.
	ErrDuplicateAccount = errors.New("an account with this email already exists")
	// ErrNotificationDelivery wraps a credentials delivery failure. The provisioning it follows stays committed.
	ErrNotificationDelivery = errors.New("credentials notification could not be delivered")
)

// Outcome is the user-facing category of an enrollment action.
type Outcome string

const (
	OutcomeApplied            Outcome = "applied"
	OutcomeAlreadyDone        Outcome = "already-done"
	OutcomeBlockedMissingData Outcome = "blocked-missing-data"
	OutcomeBlockedDuplicate   Outcome = "blocked-duplicate"
	OutcomeFailedRetryable    Outcome = "failed-retryable"
)

// OutcomeOf maps the error returned by Accept, Reject or a backfill attempt to its Outcome.
// A delivery failure does not undo the action, so it maps to OutcomeApplied.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil, errors.Is(err, ErrNotificationDelivery):
		return OutcomeApplied
	case errors.Is(err, ErrAlreadyProcessed):
		return OutcomeAlreadyDone
	case errors.Is(err, ErrMissingContact):
		return OutcomeBlockedMissingData
	case errors.Is(err, ErrDuplicateAccount):
		return OutcomeBlockedDuplicate
	default:
		return OutcomeFailedRetryable
	}
}

// IsNotFound reports whether err means the learner does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, learner.ErrNotFound)
}
