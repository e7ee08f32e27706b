package store

import "github.com/ahmatkosso56-cloud/kosso/internal/models"

type transition struct {
	From string
	To   string
}

var transitionMap = map[string]transition{
	"call":   {models.StatusPending, models.StatusCall},
	"start":  {models.StatusCall, models.StatusInProgress},
	"finish": {models.StatusInProgress, models.StatusFinished},
}

// TransitionFor resolves a lifecycle action to its required source status and
// resulting status. Unknown actions report ok=false.
func TransitionFor(action string) (from, to string, ok bool) {
	t, ok := transitionMap[action]
	return t.From, t.To, ok
}

func ValidTransition(action, fromStatus string) bool {
	t, ok := transitionMap[action]
	return ok && t.From == fromStatus
}

var actionEvents = map[string]string{
	"call":   "ticket.called",
	"start":  "ticket.started",
	"finish": "ticket.finished",
}

// EventForAction names the outbox event emitted when a lifecycle action
// succeeds.
func EventForAction(action string) string {
	return actionEvents[action]
}
