package common

import "errors"

// ErrModulePaused rejects user-facing mutations while an operator hold is
// in effect.
var ErrModulePaused = errors.New("module paused")

// PauseView reports the operator pause flag for a named module. The sale
// engine persists the flag and satisfies this from committed state.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view or empty
// module name means the gate is not wired and the call proceeds.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
