package attention

import "fmt"

// InputError reports a malformed operand or an illegal combination of
// operands. It is returned before any computation starts; a caller may
// reject the model or call without side effects.
type InputError struct {
	Operand string // input or attribute name, e.g. "bias", "num_heads"
	Msg     string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("attention: input '%s': %s", e.Operand, e.Msg)
}

// inputErrf builds an InputError for the named operand.
func inputErrf(operand, format string, args ...any) error {
	return &InputError{Operand: operand, Msg: fmt.Sprintf(format, args...)}
}

// errPastWithExtraAddQK rejects calls that supply both a past state and
// an extra additive score bias; no model uses the two together and the
// scoring paths are mutually exclusive.
var errPastWithExtraAddQK = &InputError{
	Operand: "past",
	Msg:     "cannot be combined with 'extra_add_qk'",
}
