package service

import (
	"fmt"

	"github.com/noah-isme/journal-api/internal/models"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
)

// TransitionError explains why an action cannot run from the article's current state.
type TransitionError struct {
	Action models.ArticleAction
	From   models.LifecycleState
	To     models.LifecycleState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s article in state %s", e.Action, e.From)
}

// Plan returns the transition for action if it may start from current.
func Plan(action models.ArticleAction, current models.LifecycleState) (models.Transition, error) {
	t, ok := models.Transitions[action]
	if !ok {
		return models.Transition{}, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("unknown action %s", action))
	}
	if !t.Allows(current) {
		return models.Transition{}, invalidTransition(action, current)
	}
	return t, nil
}

func invalidTransition(action models.ArticleAction, current models.LifecycleState) error {
	t := models.Transitions[action]
	terr := &TransitionError{Action: action, From: current, To: t.To}
	allowed := make([]string, len(t.From))
	for i, s := range t.From {
		allowed[i] = string(s)
	}
	return &appErrors.Error{
		Code:    appErrors.ErrInvalidTransition.Code,
		Message: terr.Error(),
		Status:  appErrors.ErrInvalidTransition.Status,
		Details: map[string]interface{}{
			"action":        string(action),
			"current_state": string(current),
			"allowed_from":  allowed,
		},
		Err: terr,
	}
}
