package enrollment

import (
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core/learner"
)

// transitions lists the statuses reachable from each status. Accepted and rejected are terminal.
var transitions = map[learner.Status][]learner.Status{
	learner.StatusPending: {learner.StatusAccepted, learner.StatusRejected},
}

// CanTransition reports whether a learner in status from may move to status to.
func CanTransition(from, to learner.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// checkTransition returns ErrAlreadyProcessed when from is terminal.
func checkTransition(from, to learner.Status) error {
	if from.IsTerminal() {
		return ErrAlreadyProcessed
	}
	if !CanTransition(from, to) {
		return errors.Errorf("invalid enrollment transition %q -> %q", from, to)
	}
	return nil
}
