package domain

// Precondition is the stored state a conditional write expects to replace.
// The retry count doubles as the record version.
type Precondition struct {
	Exists  bool
	Retries int
}

func ExpectAbsent() Precondition {
	return Precondition{}
}

func ExpectVersion(rec Record) Precondition {
	return Precondition{Exists: true, Retries: rec.Retries}
}

// Check evaluates the precondition against the currently stored record, nil
// meaning absent. A terminal stored record always fails with a TerminalError.
func (p Precondition) Check(current *Record) error {
	if current == nil {
		if p.Exists {
			return ErrConcurrentUpdate
		}
		return nil
	}
	if current.Status.Terminal() {
		return AlreadyTerminal(*current)
	}
	if !p.Exists || current.Retries != p.Retries {
		return ErrConcurrentUpdate
	}
	return nil
}
