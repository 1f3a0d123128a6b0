package mpc

import "fmt"

// Fallback is the policy applied when a control period produces no
// usable solve: the controller never invents a control, so the caller
// running the loop picks one of these.
type Fallback int

const (
	// FallbackHold repeats the last commanded control. Before any
	// control has been commanded it holds hover, the only stationary
	// input.
	FallbackHold Fallback = iota
	// FallbackZero commands zeros, cutting thrust entirely.
	FallbackZero
	// FallbackAbort stops the run at the first failed period.
	FallbackAbort
)

func (f Fallback) String() string {
	switch f {
	case FallbackHold:
		return "hold"
	case FallbackZero:
		return "zero"
	case FallbackAbort:
		return "abort"
	default:
		return fmt.Sprintf("fallback(%d)", int(f))
	}
}

// ParseFallback maps a config name onto a policy.
func ParseFallback(name string) (Fallback, error) {
	switch name {
	case "hold", "":
		return FallbackHold, nil
	case "zero":
		return FallbackZero, nil
	case "abort":
		return FallbackAbort, nil
	default:
		return FallbackHold, fmt.Errorf("unknown fallback policy: %s", name)
	}
}
