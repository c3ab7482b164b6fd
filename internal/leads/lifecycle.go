package leads

var transitions = map[Status][]Status{
	StatusOpen:      {StatusAssigned, StatusExpired},
	StatusAssigned:  {StatusContacted, StatusLost, StatusExpired},
	StatusContacted: {StatusQuoted, StatusLost},
	StatusQuoted:    {StatusWon, StatusLost},
	StatusWon:       {},
	StatusLost:      {},
	StatusExpired:   {},
}

// AllStatuses lists every lifecycle state in funnel order.
var AllStatuses = []Status{
	StatusOpen, StatusAssigned, StatusContacted, StatusQuoted, StatusWon, StatusLost, StatusExpired,
}

// ParseStatus returns ErrInvalidStatus for values outside the lifecycle.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// Valid reports whether s is a lifecycle state.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the states reachable in one step from s.
func NextStatuses(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// checkTransition validates from -> to and returns a *TransitionError if illegal.
func checkTransition(from, to Status) error {
	if !to.Valid() {
		return ErrInvalidStatus
	}
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
