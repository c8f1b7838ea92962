package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/counter"
	"github.com/entrhq/pilot/pkg/locator"
	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/workflow"
)

// Allocator fills collision-free identifiers. It tries candidates from the persisted
// counter until the page stops showing its "already assigned" banner, and commits the
// counter only for the accepted candidate.
type Allocator struct {
	Page     browser.Page
	Locators locator.Set
	Resolver *locator.Resolver
	Counters counter.Store
	Logger   *logging.Logger
	// Settle is the wait between a fill and the banner probe.
	Settle time.Duration
	Sleep  func(time.Duration)
}

func (e *Executor) allocate(ctx context.Context, step *workflow.Step, el browser.Element, value string) (string, error) {
	a := &Allocator{
		Page:     e.page,
		Locators: e.locators,
		Resolver: e.resolver,
		Counters: e.counters,
		Logger:   e.logger,
		Settle:   e.settle,
		Sleep:    e.sleep,
	}
	return a.Allocate(ctx, step, el, value)
}

// Allocate fills el with the first accepted candidate and returns it. The prefix is the
// allocation's Prefix, or value when that is empty.
//
// When every candidate is rejected the counter is left untouched and the error wraps
// ErrNoAvailableIdentifier.
func (a *Allocator) Allocate(ctx context.Context, step *workflow.Step, el browser.Element, value string) (string, error) {
	alloc := step.Allocate
	prefix := alloc.Prefix
	if prefix == "" {
		prefix = value
	}

	candidate, ok, err := a.Counters.Current(ctx, alloc.Category)
	if err != nil {
		return "", newError(KindActionFailed, step, "read counter "+alloc.Category, err)
	}
	if !ok {
		candidate = alloc.Start
		if candidate < 1 {
			candidate = 1
		}
	}

	timeout := actionTimeout(step)
	for i := 0; i < alloc.Attempts(); i, candidate = i+1, candidate+1 {
		id := alloc.Format(prefix, candidate)
		if step.ClearBeforeFill {
			if err := el.Clear(timeout); err != nil {
				return "", classify(step, "clear", err)
			}
		}
		if err := el.Fill(id, timeout); err != nil {
			return "", classify(step, "fill "+id, err)
		}
		if a.Settle > 0 {
			a.Sleep(a.Settle)
		}

		rejected, err := a.bannerVisible(ctx, alloc)
		if err != nil {
			return "", classify(step, "probe allocation banner", err)
		}
		if !rejected {
			if err := a.Counters.Commit(ctx, alloc.Category, candidate+1); err != nil {
				return "", newError(KindActionFailed, step, fmt.Sprintf("commit counter %s", alloc.Category), err)
			}
			a.Logger.Infof("step %s: allocated %s (%s next %d)", step.ID, id, alloc.Category, candidate+1)
			return id, nil
		}

		a.Logger.Infof("step %s: identifier %s already assigned", step.ID, id)
		a.dismiss(ctx, alloc)
	}

	return "", newError(KindActionRejected, step,
		fmt.Sprintf("%d candidate(s) rejected for %s", alloc.Attempts(), alloc.Category), ErrNoAvailableIdentifier)
}

// bannerVisible probes once, without waiting, for a visible rejection banner.
func (a *Allocator) bannerVisible(ctx context.Context, alloc *workflow.Allocation) (bool, error) {
	var selectors []string
	if alloc.BannerLocator != "" {
		loc, err := a.Locators.Lookup(alloc.BannerLocator)
		if err != nil {
			return false, err
		}
		for _, s := range loc.Ordered() {
			if sel, err := locator.Selector(s); err == nil {
				selectors = append(selectors, sel)
			}
		}
	}
	if alloc.BannerText != "" {
		sel, err := locator.Selector(locator.Strategy{Kind: locator.KindText, Value: alloc.BannerText})
		if err != nil {
			return false, err
		}
		selectors = append(selectors, sel)
	}

	for _, sel := range selectors {
		matches, err := a.Page.Query(ctx, sel)
		if err != nil {
			return false, err
		}
		for _, m := range matches {
			if visible, _ := m.IsVisible(); visible {
				return true, nil
			}
		}
	}
	return false, nil
}

// dismiss closes the banner through its dismiss locator, falling back to Escape.
func (a *Allocator) dismiss(ctx context.Context, alloc *workflow.Allocation) {
	if alloc.DismissLocator != "" {
		if loc, err := a.Locators.Lookup(alloc.DismissLocator); err == nil {
			res := a.Resolver.Resolve(ctx, a.Page, loc, 0)
			if res.OK() {
				if err := res.Element.Click(DefaultActionTimeout); err == nil {
					return
				}
			}
		}
		a.Logger.Warnf("allocation: dismiss locator %s failed, pressing Escape", alloc.DismissLocator)
	}
	if err := a.Page.PressKey(ctx, "Escape"); err != nil {
		a.Logger.Warnf("allocation: failed to dismiss banner: %v", err)
	}
}
