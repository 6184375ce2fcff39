package lifecycle

import (
	"errors"
	"fmt"

	"newsdesk/pressroom/internal/models"
)

// ErrAlreadyDecided is returned when Decide runs on an item that already has
// decision fields; re-running is a caller error.
var ErrAlreadyDecided = errors.New("content item already decided")

// InvalidTransitionError reports a lifecycle action attempted from a state
// that does not allow it. Callers must not retry without correcting state.
type InvalidTransitionError struct {
	Action string
	From   models.ContentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s from state %q", e.Action, e.From)
}

func invalidTransition(action string, from models.ContentStatus) error {
	return &InvalidTransitionError{Action: action, From: from}
}
