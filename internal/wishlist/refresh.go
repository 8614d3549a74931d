package wishlist

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RefreshPhase is the persisted half of the reload handshake.
type RefreshPhase int

const (
	// PhaseNone means no handshake is in progress.
	PhaseNone RefreshPhase = iota
	// PhaseAwaitingSecondPass means the first reload back to native sorting
	// happened and the corrective second reload is still owed.
	PhaseAwaitingSecondPass
)

func (p RefreshPhase) String() string {
	if p == PhaseAwaitingSecondPass {
		return "awaiting_second_pass"
	}
	return "none"
}

// phaseMarker is the stored value for PhaseAwaitingSecondPass. Any other
// value, or no value, reads as PhaseNone.
const phaseMarker = "1"

// PhaseStore reads and writes the RefreshPhase under a fixed key.
type PhaseStore struct {
	store SessionStore
	key   string
}

// NewPhaseStore binds a phase store to a session store key.
func NewPhaseStore(store SessionStore, key string) PhaseStore {
	return PhaseStore{store: store, key: key}
}

// Load returns the persisted phase.
func (p PhaseStore) Load(ctx context.Context) (RefreshPhase, error) {
	if p.store == nil {
		return PhaseNone, ErrStoreUnavailable
	}
	v, ok, err := p.store.Get(ctx, p.key)
	if err != nil {
		return PhaseNone, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ok && v == phaseMarker {
		return PhaseAwaitingSecondPass, nil
	}
	return PhaseNone, nil
}

// Save persists phase. PhaseNone removes the entry.
func (p PhaseStore) Save(ctx context.Context, phase RefreshPhase) error {
	if p.store == nil {
		return ErrStoreUnavailable
	}
	var err error
	if phase == PhaseAwaitingSecondPass {
		err = p.store.Set(ctx, p.key, phaseMarker)
	} else {
		err = p.store.Remove(ctx, p.key)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// MachineState is the in-memory view of the reload handshake for one page load.
type MachineState int

const (
	StateIdle MachineState = iota
	StateHidingForFirstReload
	StateAwaitingSecondReload
)

func (s MachineState) String() string {
	switch s {
	case StateHidingForFirstReload:
		return "hiding_for_first_reload"
	case StateAwaitingSecondReload:
		return "awaiting_second_reload"
	default:
		return "idle"
	}
}

// BootPlan tells the controller what a fresh page load has to do.
type BootPlan struct {
	// Reload is set when the second corrective reload is owed; the
	// controller must call FireReload once ReloadAfter elapses.
	Reload      bool
	ReloadAfter time.Duration
	// Reveal asks the controller to lift suppression once the container exists.
	Reveal bool
}

// StateMachine coordinates handing control back to native sorting with two
// full reloads, so a half applied list is never shown.
type StateMachine struct {
	doc    Document
	phases PhaseStore
	delay  time.Duration
	logger *zap.Logger

	state MachineState
	// disabled is set when the store cannot be used or a handshake had to be
	// abandoned; native sort clicks are then never intercepted.
	disabled bool
}

// NewStateMachine creates a machine for one page load. Call Boot before use.
func NewStateMachine(doc Document, phases PhaseStore, delay time.Duration, logger *zap.Logger) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateMachine{doc: doc, phases: phases, delay: delay, logger: logger.Named("refresh")}
}

// State returns the current state.
func (m *StateMachine) State() MachineState { return m.state }

// Disabled reports whether native sort interception is off for this load.
func (m *StateMachine) Disabled() bool { return m.disabled }

// Boot reads the persisted phase once at page load and plans the follow up.
func (m *StateMachine) Boot(ctx context.Context) BootPlan {
	phase, err := m.phases.Load(ctx)
	if err != nil {
		m.disabled = true
		m.logger.Warn("Session store unavailable; native sort interception disabled.", zap.Error(err))
		return BootPlan{Reveal: true}
	}

	if phase != PhaseAwaitingSecondPass {
		m.state = StateIdle
		return BootPlan{Reveal: true}
	}

	m.state = StateAwaitingSecondReload
	m.logger.Info("Second reload owed; hiding wishlist until it completes.")
	if err := m.doc.SetSuppressed(ctx, true); err != nil {
		m.logger.Warn("Failed to hide wishlist.", zap.Error(err))
	}
	return BootPlan{Reload: true, ReloadAfter: m.delay}
}

// OnNativeSort starts the handshake after a native option was chosen while
// the price sort was in control. It reports whether a reload is now pending;
// the controller must call FireReload after Delay.
func (m *StateMachine) OnNativeSort(ctx context.Context, option string) bool {
	if m.disabled || m.state != StateIdle {
		return false
	}
	m.logger.Info("Switching to native sort.", zap.String("option", option))

	if err := m.doc.SetSuppressed(ctx, true); err != nil {
		m.logger.Warn("Failed to hide wishlist.", zap.Error(err))
	}
	if err := m.phases.Save(ctx, PhaseAwaitingSecondPass); err != nil {
		// Without the flag the next load cannot finish the handshake; leave
		// the host page to apply the native sort on its own.
		m.disabled = true
		m.logger.Warn("Could not persist reload phase; native sort left to the page.", zap.Error(err))
		if err := m.doc.SetSuppressed(ctx, false); err != nil {
			m.logger.Warn("Failed to reveal wishlist.", zap.Error(err))
		}
		return false
	}

	m.state = StateHidingForFirstReload
	m.logger.Info("First reload scheduled (wishlist hidden).", zap.Duration("delay", m.delay))
	return true
}

// Delay is the pause between applying suppression and navigating.
func (m *StateMachine) Delay() time.Duration { return m.delay }

// FireReload performs the pending reload and returns ErrPageReloaded. When
// the reload cannot happen the handshake is abandoned instead: the list is
// revealed, interception is disabled for this load, and nil is returned so the
// controller keeps serving the current page.
func (m *StateMachine) FireReload(ctx context.Context) error {
	switch m.state {
	case StateAwaitingSecondReload:
		if err := m.phases.Save(ctx, PhaseNone); err != nil {
			// Reloading with the flag still set would repeat this load forever.
			m.abandon(ctx, "Failed to clear reload phase; second reload skipped.", err)
			return nil
		}
		m.logger.Info("Performing second reload to finalize native sorting.")
	case StateHidingForFirstReload:
		m.logger.Info("Performing first reload.")
	default:
		return fmt.Errorf("no reload pending in state %s", m.state)
	}

	if err := m.doc.Reload(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.state == StateHidingForFirstReload {
			if err := m.phases.Save(ctx, PhaseNone); err != nil {
				m.logger.Warn("Failed to clear reload phase.", zap.Error(err))
			}
		}
		m.abandon(ctx, "Reload failed; staying on the current page.", err)
		return nil
	}
	return ErrPageReloaded
}

// abandon drops a handshake that cannot complete and leaves the list visible.
func (m *StateMachine) abandon(ctx context.Context, msg string, cause error) {
	m.logger.Warn(msg, zap.Error(cause))
	m.state = StateIdle
	m.disabled = true
	if err := m.doc.SetSuppressed(ctx, false); err != nil {
		m.logger.Warn("Failed to reveal wishlist.", zap.Error(err))
	}
}
