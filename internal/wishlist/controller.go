package wishlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wishsort/internal/config"
)

// maxAttachRetries caps how often a trigger insertion is retried after the
// page reported the insertion point missing.
const maxAttachRetries = 5

// Controller drives one page load: it waits for the host page to render,
// injects the trigger, wires native sort options, and dispatches user
// activations to the Engine and the StateMachine. All work happens on the
// goroutine calling Run.
type Controller struct {
	id      string
	cfg     config.WishlistConfig
	page    Page
	engine  *Engine
	machine *StateMachine
	pace    Pace
	logger  *zap.Logger
}

// NewController prepares a controller for a freshly loaded page.
func NewController(cfg config.WishlistConfig, page Page, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New().String()
	l := logger.With(zap.String("execution_id", id[:8]))

	return &Controller{
		id:      id,
		cfg:     cfg,
		page:    page,
		engine:  NewEngine(NewExtractor(cfg, l), l),
		machine: NewStateMachine(page, NewPhaseStore(page.Session(), cfg.StorageKey), cfg.ReloadDelay, l),
		pace:    Pace{Interval: cfg.PollInterval, Attempts: cfg.PollAttempts},
		logger:  l.Named("controller"),
	}
}

// ID returns the execution identifier used in logs.
func (c *Controller) ID() string { return c.id }

// Engine exposes the sort engine of this page load.
func (c *Controller) Engine() *Engine { return c.engine }

// Machine exposes the reload state machine of this page load.
func (c *Controller) Machine() *StateMachine { return c.machine }

// Run processes the page until ctx ends, the page closes its event stream
// (nil), or a reload was triggered (ErrPageReloaded).
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		reloadTimer *time.Timer
		reloadC     <-chan time.Time
	)
	schedule := func(d time.Duration) {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
		reloadTimer = time.NewTimer(d)
		reloadC = reloadTimer.C
	}
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	plan := c.machine.Boot(ctx)
	var triggerW, menuW, optionsW, revealW *Watch
	inject := func() {
		if c.cfg.Trigger == config.TriggerButton {
			triggerW = WatchFor(ctx, "header", c.pace, c.page.HeaderReady)
		}
		menuW = WatchFor(ctx, "menu", c.pace, c.page.MenuReady)
	}

	if plan.Reload {
		// The page is about to go away again; nothing to inject.
		schedule(plan.ReloadAfter)
	} else {
		inject()
		if plan.Reveal {
			revealW = WatchFor(ctx, "container", c.pace, c.containerReady)
		}
	}
	attachRetries := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-reloadC:
			reloadC = nil
			if err := c.machine.FireReload(ctx); err != nil {
				return err
			}
			// The handshake was abandoned and this page stays.
			if plan.Reload {
				plan.Reload = false
				inject()
			}

		case err := <-doneOf(triggerW):
			triggerW = nil
			if !c.settled("header", err) {
				continue
			}
			if !c.attach(ctx, config.TriggerButton, c.cfg.Labels.Button) && attachRetries < maxAttachRetries {
				attachRetries++
				triggerW = WatchFor(ctx, "header", c.pace, c.page.HeaderReady)
			}

		case err := <-doneOf(menuW):
			menuW = nil
			if !c.settled("menu", err) {
				continue
			}
			if c.cfg.Trigger == config.TriggerDropdown &&
				!c.attach(ctx, config.TriggerDropdown, c.cfg.Labels.Option) && attachRetries < maxAttachRetries {
				attachRetries++
				menuW = WatchFor(ctx, "menu", c.pace, c.page.MenuReady)
				continue
			}
			if n, _ := c.wireOptions(ctx); n == 0 {
				// The menu renders its options after the container.
				optionsW = WatchFor(ctx, "menu options", c.pace, c.optionsWired)
			}

		case err := <-doneOf(optionsW):
			optionsW = nil
			c.settled("menu options", err)

		case err := <-doneOf(revealW):
			revealW = nil
			if !c.settled("container", err) {
				continue
			}
			if err := c.page.SetSuppressed(ctx, false); err != nil {
				c.logger.Warn("Failed to reveal wishlist.", zap.Error(err))
			}

		case ev, ok := <-c.page.Events():
			if !ok {
				c.logger.Debug("Page event stream closed.")
				return nil
			}
			if c.handle(ctx, ev) {
				schedule(c.machine.Delay())
			}
		}
	}
}

// handle dispatches one user activation and reports whether a reload must be scheduled.
func (c *Controller) handle(ctx context.Context, ev Event) bool {
	c.logger.Debug("Page event.", zap.Stringer("kind", ev.Kind), zap.String("option", ev.Option))

	switch ev.Kind {
	case EventTrigger:
		if c.machine.State() != StateIdle {
			c.logger.Debug("Ignoring sort request while a reload is pending.")
			return false
		}
		c.sort(ctx)

	case EventNativeSort:
		if c.machine.State() != StateIdle {
			return false
		}
		reload := false
		if c.engine.State().Provenance == Price {
			reload = c.machine.OnNativeSort(ctx, ev.Option)
		}
		c.engine.YieldToNative()
		return reload
	}
	return false
}

// sort runs one pass. Failures are logged and leave the page untouched.
func (c *Controller) sort(ctx context.Context) {
	if _, err := c.engine.Sort(ctx, c.page); err != nil {
		if errors.Is(err, ErrMissingContainer) {
			c.logger.Warn("Wishlist container not found; nothing sorted.")
		} else {
			c.logger.Error("Sort pass failed.", zap.Error(err))
		}
		return
	}
	if c.cfg.Trigger == config.TriggerDropdown {
		if err := c.page.SetSortLabel(ctx, c.cfg.Labels.Option); err != nil {
			c.logger.Warn("Failed to update sort header.", zap.Error(err))
		}
	}
}

func (c *Controller) attach(ctx context.Context, style config.TriggerStyle, label string) bool {
	ok, err := c.page.AttachTrigger(ctx, style, label)
	if err != nil {
		c.logger.Warn("Failed to attach sort trigger.", zap.Error(err))
		return false
	}
	if !ok {
		c.logger.Debug("Trigger insertion point missing; retrying.")
		return false
	}
	c.logger.Info("Sort trigger attached.", zap.String("style", string(style)))
	return true
}

// wireOptions wires native options not wired yet and returns how many it wired.
func (c *Controller) wireOptions(ctx context.Context) (int, error) {
	n, err := c.page.WireNativeOptions(ctx)
	if err != nil {
		c.logger.Warn("Failed to wire native sort options.", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		c.logger.Debug("Native sort options wired.", zap.Int("new", n))
	}
	return n, nil
}

func (c *Controller) optionsWired(ctx context.Context) (bool, error) {
	n, err := c.wireOptions(ctx)
	return n > 0, err
}

func (c *Controller) containerReady(ctx context.Context) (bool, error) {
	_, err := c.page.Container(ctx)
	return err == nil, err
}

// settled logs why a watch ended and reports whether its condition holds.
func (c *Controller) settled(name string, err error) bool {
	if err == nil {
		return true
	}
	if !errors.Is(err, context.Canceled) {
		c.logger.Warn("Gave up waiting for page element.", zap.String("element", name), zap.Error(err))
	}
	return false
}

// doneOf returns the watch's completion channel, or nil so a select skips it.
func doneOf(w *Watch) <-chan error {
	if w == nil {
		return nil
	}
	return w.Done()
}
