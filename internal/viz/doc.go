// Package viz provides the terminal live view for closed-loop runs.
//
// The package implements a TUI using the Bubble Tea framework:
//
//   - [Model]: live view that solves one control period per tick
//   - [Canvas]: Braille-based pixel canvas for high-fidelity rendering
//
// # Key Bindings
//
//	Space - Pause/Resume the loop
//	R     - Reset to the initial state
//	Q     - Quit
//
// The sidebar shows the vehicle state, the latest solve diagnostics and
// an asciigraph history of the distance to the target.
package viz
