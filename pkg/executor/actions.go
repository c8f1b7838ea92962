package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/entrhq/pilot/pkg/browser"
	"github.com/entrhq/pilot/pkg/locator"
	"github.com/entrhq/pilot/pkg/tracing"
	"github.com/entrhq/pilot/pkg/workflow"
)

// runStep binds, performs and retries one step.
func (e *Executor) runStep(ctx context.Context, r *run, step *workflow.Step) (sr StepResult) {
	sr = StepResult{StepID: step.ID, Order: step.Order}

	ctx, span := tracing.StartSpan(ctx, e.tracer, "pilot.step",
		attribute.String(tracing.StepIDKey, step.ID),
		attribute.String(tracing.StepActionKey, string(step.Action)),
		attribute.String(tracing.LocatorKey, step.Locator),
	)
	defer func() {
		span.SetAttributes(attribute.Int(tracing.StepAttemptsKey, sr.Attempts))
		if sr.Strategy != "" {
			span.SetAttributes(attribute.String(tracing.StrategyKey, sr.Strategy))
		}
		if sr.Err != nil {
			tracing.SetError(span, sr.Err)
		}
		span.End()
	}()

	value, err := workflow.Bind(step, r.row, r.rc)
	if err != nil {
		sr.Attempts = 1
		return failStep(sr, classify(step, "bind value", err))
	}
	sr.Value = value

	if step.Delay > 0 {
		e.sleep(step.Delay)
	}

	var captured string
	if step.Action.NeedsElement() {
		captured, err = e.runElementStep(ctx, r, step, value, &sr)
	} else {
		sr.Attempts = 1
		captured, err = e.performDirect(ctx, r, step, value)
		if err == nil {
			err = e.afterAction(ctx, step)
		}
	}
	if err != nil {
		return failStep(sr, err)
	}

	if captured != "" {
		sr.Value = captured
	}
	if step.SaveAs != "" {
		r.rc.Set(step.SaveAs, sr.Value)
	}
	sr.Success = true
	sr.Message = fmt.Sprintf("%s ok", step.Action)
	if sr.Attempts > 1 {
		sr.Message = fmt.Sprintf("%s ok after %d attempts", step.Action, sr.Attempts)
	}
	e.logger.Debugf("step %s: %s", step.ID, sr.Message)
	return sr
}

func failStep(sr StepResult, err error) StepResult {
	sr.Success = false
	sr.Err = err
	sr.Message = err.Error()
	return sr
}

// runElementStep resolves the step's element and performs its action, retrying
// retryable failures up to the step's attempt budget.
func (e *Executor) runElementStep(ctx context.Context, r *run, step *workflow.Step, value string, sr *StepResult) (string, error) {
	sr.Attempts = 1
	loc, err := e.locators.Lookup(step.Locator)
	if err != nil {
		return "", classify(step, "resolve locator", err)
	}
	var precheck *locator.Locator
	if step.Precheck != "" {
		if precheck, err = e.locators.Lookup(step.Precheck); err != nil {
			return "", classify(step, "resolve precheck locator", err)
		}
	}

	attempts := step.Attempts()
	var lastErr error
	for n := 1; n <= attempts; n++ {
		sr.Attempts = n
		captured, strategy, err := e.attemptElement(ctx, step, loc, precheck, value)
		if err == nil {
			sr.Strategy = strategy
			return captured, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", newError(KindCancelled, step, "cancelled", fmt.Errorf("%w: %w", ErrCancelled, ctxErr))
		}
		if !KindOf(err).Retryable() || errors.Is(err, ErrNoAvailableIdentifier) {
			break
		}
		if n < attempts {
			e.logger.Warnf("step %s: attempt %d/%d failed: %v", step.ID, n, attempts, err)
			e.sleep(e.retryDelay * time.Duration(n))
		}
	}

	e.logger.Errorf("step %s: failed after %d attempt(s): %v", step.ID, sr.Attempts, lastErr)
	sr.Screenshot, sr.Snapshot = e.captureFailure(ctx, r, step)
	return "", lastErr
}

// attemptElement is one attempt of an element step. It returns the captured value and
// the strategy that resolved the element.
func (e *Executor) attemptElement(ctx context.Context, step *workflow.Step, loc, precheck *locator.Locator, value string) (string, string, error) {
	if precheck != nil {
		if res := e.resolver.Resolve(ctx, e.page, precheck, step.Timeout); !res.OK() {
			return "", "", resolutionError(step, precheck, res)
		}
	}

	res := e.resolver.Resolve(ctx, e.page, loc, step.Timeout)
	if !res.OK() {
		return "", "", resolutionError(step, loc, res)
	}
	strategy := res.Strategy.String()

	var (
		captured string
		err      error
	)
	if step.Action == workflow.ActionFill && step.Allocate != nil {
		captured, err = e.allocate(ctx, step, res.Element, value)
	} else {
		captured, err = e.perform(step, res.Element, value)
	}
	if err != nil {
		return "", strategy, err
	}
	if err := e.afterAction(ctx, step); err != nil {
		return "", strategy, err
	}
	return captured, strategy, nil
}

func resolutionError(step *workflow.Step, loc *locator.Locator, res locator.Resolution) *Error {
	if res.Outcome == locator.Timeout {
		return newError(KindActionTimeout, step, fmt.Sprintf("timed out resolving %s", loc.Name), res.Err)
	}
	return newError(KindElementNotFound, step,
		fmt.Sprintf("element %s not found after %d strateg(ies)", loc.Name, res.Attempted), res.Err)
}

// perform runs an element action. It returns the captured value of assert-text.
func (e *Executor) perform(step *workflow.Step, el browser.Element, value string) (string, error) {
	timeout := actionTimeout(step)

	switch step.Action {
	case workflow.ActionClick:
		return "", wrapAction(step, "click", el.Click(timeout))
	case workflow.ActionFill:
		if step.ClearBeforeFill {
			if err := el.Clear(timeout); err != nil {
				return "", classify(step, "clear", err)
			}
		}
		return "", wrapAction(step, "fill", el.Fill(value, timeout))
	case workflow.ActionSelect:
		return "", wrapAction(step, "select", el.SelectOption(value, timeout))
	case workflow.ActionCheck:
		return "", wrapAction(step, "check", el.SetChecked(truthy(value), timeout))
	case workflow.ActionHover:
		return "", wrapAction(step, "hover", el.Hover(timeout))
	case workflow.ActionScroll:
		return "", wrapAction(step, "scroll", el.ScrollIntoView(timeout))
	case workflow.ActionWait:
		// Resolution already waited for the element.
		return "", nil
	case workflow.ActionAssertVisible:
		visible, err := el.IsVisible()
		if err != nil {
			return "", classify(step, "assert visible", err)
		}
		if !visible {
			return "", newError(KindActionRejected, step, "element is not visible", nil)
		}
		return "", nil
	case workflow.ActionAssertText:
		text, err := el.Text()
		if err != nil {
			return "", classify(step, "assert text", err)
		}
		text = collapseSpace(text)
		if want := collapseSpace(value); want != "" && !strings.Contains(text, want) {
			return "", newError(KindActionRejected, step, fmt.Sprintf("text %q does not contain %q", text, want), nil)
		}
		return text, nil
	}
	return "", newError(KindConfiguration, step, fmt.Sprintf("unsupported element action %q", step.Action), workflow.ErrConfiguration)
}

// performDirect runs actions that need no element.
func (e *Executor) performDirect(ctx context.Context, r *run, step *workflow.Step, value string) (string, error) {
	switch step.Action {
	case workflow.ActionWaitTime:
		d, err := parseWait(value)
		if err != nil {
			return "", newError(KindConfiguration, step, "invalid wait time", fmt.Errorf("%w: %w", workflow.ErrConfiguration, err))
		}
		e.sleep(d)
		return "", nil
	case workflow.ActionPressKey:
		if value == "" {
			return "", newError(KindConfiguration, step, "press-key needs a key", workflow.ErrConfiguration)
		}
		return "", wrapAction(step, "press key", e.page.PressKey(ctx, value))
	case workflow.ActionScreenshot:
		name := value
		if name == "" {
			name = fmt.Sprintf("%s-%s.png", sanitize(step.ID), r.result.RunID)
		}
		if filepath.Ext(name) == "" {
			name += ".png"
		}
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(e.screenshotDir, name)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return "", newError(KindActionFailed, step, "create screenshot directory", err)
		}
		if err := e.page.Screenshot(ctx, path); err != nil {
			return "", classify(step, "screenshot", err)
		}
		return path, nil
	}
	return "", newError(KindConfiguration, step, fmt.Sprintf("unsupported action %q", step.Action), workflow.ErrConfiguration)
}

// afterAction applies the post-success wait and key press.
func (e *Executor) afterAction(ctx context.Context, step *workflow.Step) error {
	if step.WaitAfter > 0 {
		e.sleep(step.WaitAfter)
	}
	if step.PressKey != "" {
		if err := e.page.PressKey(ctx, step.PressKey); err != nil {
			return classify(step, "press "+step.PressKey, err)
		}
	}
	return nil
}

// captureFailure writes a best-effort screenshot and cleaned page snapshot for a failed
// step and returns their paths.
func (e *Executor) captureFailure(ctx context.Context, r *run, step *workflow.Step) (screenshot, snapshot string) {
	if err := os.MkdirAll(e.screenshotDir, 0750); err != nil {
		e.logger.Warnf("failure capture for step %s: %v", step.ID, err)
		return "", ""
	}
	base := filepath.Join(e.screenshotDir, fmt.Sprintf("%s-%s-failure", r.result.RunID, sanitize(step.ID)))

	e.attempt("failure screenshot for step "+step.ID, func() error {
		if err := e.page.Screenshot(ctx, base+".png"); err != nil {
			return err
		}
		screenshot = base + ".png"
		return nil
	})
	e.attempt("page snapshot for step "+step.ID, func() error {
		content, err := e.page.Content(ctx)
		if err != nil {
			return err
		}
		cleaned, err := browser.CleanHTML(content, snapshotLimit)
		if err != nil {
			return err
		}
		if err := os.WriteFile(base+".html", []byte(cleaned.HTML), 0600); err != nil {
			return err
		}
		snapshot = base + ".html"
		return nil
	})
	return screenshot, snapshot
}

func wrapAction(step *workflow.Step, op string, err error) error {
	if err == nil {
		return nil
	}
	return classify(step, op, err)
}

func actionTimeout(step *workflow.Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return DefaultActionTimeout
}

// truthy interprets a check value. Empty means checked.
func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "0", "no", "off", "unchecked":
		return false
	}
	return true
}

// parseWait accepts Go durations ("1.5s", "200ms") or bare seconds ("2", "0.5").
func parseWait(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("cannot parse %q as a duration", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}
