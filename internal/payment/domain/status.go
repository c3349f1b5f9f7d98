package domain

import "strings"

// statusByCode maps gateway pay_state codes to order statuses. Codes absent
// from the table are failures.
var statusByCode = map[string]OrderStatus{
	"1":  StatusPending,
	"4":  StatusCompleted,
	"8":  StatusCancelled,
	"16": StatusCancelled,
	"31": StatusCancelled,
	"32": StatusCancelled,
	"9":  StatusRefunded,
	"64": StatusRefunded,
	"10": StatusWaiting,
}

func StatusFromCode(code string) OrderStatus {
	if st, ok := statusByCode[strings.TrimSpace(code)]; ok {
		return st
	}
	return StatusFailed
}

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending: {StatusWaiting, StatusCompleted, StatusCancelled, StatusRefunded, StatusFailed},
	StatusWaiting: {StatusCompleted, StatusCancelled, StatusFailed},
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s OrderStatus) bool {
	return len(transitions[s]) == 0
}
