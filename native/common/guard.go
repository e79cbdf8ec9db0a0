package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module flow has been halted by the
// protocol administrator.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module flow is paused. A nil view means no
// pause switchboard is wired and everything is allowed.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is a concrete PauseView backed by a static set of halted flows.
type Pauses struct {
	halted map[string]bool
}

// NewPauses builds a pause switchboard from the supplied halted module names.
func NewPauses(halted ...string) *Pauses {
	p := &Pauses{halted: make(map[string]bool, len(halted))}
	for _, name := range halted {
		p.halted[name] = true
	}
	return p
}

// IsPaused implements PauseView.
func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	return p.halted[module]
}

// Set toggles the pause state for a module flow.
func (p *Pauses) Set(module string, paused bool) {
	if p == nil {
		return
	}
	if p.halted == nil {
		p.halted = make(map[string]bool)
	}
	p.halted[module] = paused
}
