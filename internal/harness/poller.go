package harness

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Poller is one polling primitive in progress.
//
// It leaves calling the query and sleeping to its driver, so a script
// runtime can suspend between polls instead of blocking. Each result is
// handed to Observe, which decides whether polling is over.
type Poller struct {
	h       *Harness
	q       Query
	timeout time.Duration
	start   time.Time
	polls   int
	expired func() error
}

// Poll starts a waitFor over q. The timeout budget starts now.
func (h *Harness) Poll(q Query, timeout time.Duration) *Poller {
	p := &Poller{h: h, q: q, timeout: timeout, start: h.clock.Now()}
	p.expired = func() error {
		h.logger.Debug("waitFor timed out", "timeout_ms", FormatMillis(timeout), "query", describe(q))
		return timeoutFailure("waitFor",
			fmt.Sprintf("waitFor timed out at %sms, no result for \"%s\"", FormatMillis(timeout), describe(q)),
			nil)
	}
	return p
}

// PollSelector starts a querySelector for sel.
func (h *Harness) PollSelector(sel string, timeout time.Duration) *Poller {
	q := Describe(fmt.Sprintf("() => document.querySelector(%q)", sel), func(context.Context) (any, error) {
		if h.doc == nil {
			return nil, ErrNoDocument
		}
		el, err := h.doc.QuerySelector(sel)
		if err != nil || el == nil {
			return nil, err
		}
		return el, nil
	})
	return h.pollElements("querySelector", sel, q, timeout)
}

// PollSelectorAll starts a querySelectorAll for sel. An empty match list
// counts as no result.
func (h *Harness) PollSelectorAll(sel string, timeout time.Duration) *Poller {
	q := Describe(fmt.Sprintf("() => document.querySelectorAll(%q)", sel), func(context.Context) (any, error) {
		if h.doc == nil {
			return nil, ErrNoDocument
		}
		els, err := h.doc.QuerySelectorAll(sel)
		if err != nil || len(els) == 0 {
			return nil, err
		}
		return els, nil
	})
	return h.pollElements("querySelectorAll", sel, q, timeout)
}

// pollElements relabels the waitFor timeout with the selector primitive's
// own message, keeping the waitFor failure as its cause.
func (h *Harness) pollElements(op, sel string, q Query, timeout time.Duration) *Poller {
	p := h.Poll(q, timeout)
	inner := p.expired
	p.expired = func() error {
		return timeoutFailure(op,
			fmt.Sprintf("%s timed out at %sms, no elements matching \"%s\"", op, FormatMillis(timeout), sel),
			inner())
	}
	return p
}

// Query returns the query to call for the next poll.
func (p *Poller) Query() Query {
	return p.q
}

// Observe takes the result of one query call. A truthy result ends polling
// with that value. A falsy one ends it with a timeout Failure when it came
// from a re-invocation made after the budget ran out. Otherwise done is
// false and the driver sleeps one poll interval before calling the query
// again.
func (p *Poller) Observe(r any) (v any, done bool, err error) {
	if Truthy(r) {
		return r, true, nil
	}
	p.polls++
	if p.polls > 1 && p.h.clock.Now().Sub(p.start) > p.timeout {
		return nil, true, p.expired()
	}
	return nil, false, nil
}

// FormatMillis renders d in milliseconds the way a script prints a number:
// no trailing zeros and no decimal point for whole values.
func FormatMillis(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', -1, 64)
}

// Millis converts a script-supplied millisecond budget, keeping fractions.
// NaN, which no elapsed time exceeds, and budgets past the Duration range
// are clamped.
func Millis(ms float64) time.Duration {
	ns := ms * float64(time.Millisecond)
	switch {
	case math.IsNaN(ns) || ns >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	case ns <= math.MinInt64:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ns)
}
