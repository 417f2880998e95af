package template

// MissingAction specifies how to handle missing variables.
type MissingAction int

const (
	// MissingKeep keeps the placeholder as written. This is the default.
	MissingKeep MissingAction = iota

	// MissingEmpty replaces the placeholder with an empty string.
	MissingEmpty

	// MissingError fails expansion with an *UndefinedVariableError.
	MissingError
)

// String implements fmt.Stringer.
func (a MissingAction) String() string {
	switch a {
	case MissingEmpty:
		return "empty"
	case MissingError:
		return "error"
	}
	return "keep"
}

// ParseMissingAction maps "keep", "empty" or "error" to a MissingAction.
func ParseMissingAction(s string) (MissingAction, bool) {
	switch s {
	case "", "keep":
		return MissingKeep, true
	case "empty":
		return MissingEmpty, true
	case "error":
		return MissingError, true
	}
	return MissingKeep, false
}

// Option configures an Expander.
type Option func(*Expander)

// WithMissingAction sets how missing variables are handled.
func WithMissingAction(action MissingAction) Option {
	return func(e *Expander) {
		e.missingAction = action
	}
}

// WithDollarStyle enables or disables $var expansion. ${var} is always
// expanded.
func WithDollarStyle(enabled bool) Option {
	return func(e *Expander) {
		e.dollarStyle = enabled
	}
}
