package harness_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/humane/internal/dom"
	"github.com/roach88/humane/internal/harness"
	"github.com/roach88/humane/internal/testutil"
)

func newHarness(t *testing.T, page string) (*harness.Harness, *dom.Document, *testutil.FakeClock) {
	t.Helper()
	doc, err := dom.ParseString(page)
	require.NoError(t, err)
	clock := testutil.NewFakeClock()
	return harness.New(doc, harness.WithClock(clock)), doc, clock
}

func TestAssertEq_EqualValuesRecordNothing(t *testing.T) {
	h := harness.New(nil)

	h.AssertEq(1, 1)
	h.AssertEq("a", "a")
	h.AssertEq(nil, nil)
	h.AssertEq(true, true)

	assert.Empty(t, h.Errors())
}

func TestAssertEq_MismatchRecordsAndContinues(t *testing.T) {
	h := harness.New(nil)

	h.AssertEq(1, 2)
	h.AssertEq("a", "a")
	h.AssertEq("x", "y")

	assert.Equal(t, []string{
		"Equality Assertion failed. Left: 1, Right: 2",
		`Equality Assertion failed. Left: "x", Right: "y"`,
	}, h.Errors())
	require.Len(t, h.Failures(), 2)
	assert.Equal(t, harness.KindAssertion, h.Failures()[0].Kind)
	assert.Equal(t, "assert_eq", h.Failures()[0].Op)
}

func TestAssertEq_NoCoercion(t *testing.T) {
	h := harness.New(nil)
	h.AssertEq(1, "1")
	assert.Equal(t, []string{`Equality Assertion failed. Left: 1, Right: "1"`}, h.Errors())
}

func TestAssertEq_CompositesByIdentity(t *testing.T) {
	h := harness.New(nil)
	left := map[string]any{"a": 1}
	right := map[string]any{"a": 1}

	h.AssertEq(left, left)
	require.Empty(t, h.Errors())

	h.AssertEq(left, right)
	assert.Equal(t, []string{`Equality Assertion failed. Left: {"a":1}, Right: {"a":1}`}, h.Errors())
}

func TestWaitFor_ImmediateTruthy(t *testing.T) {
	h, _, clock := newHarness(t, "<p></p>")
	calls := 0

	r, err := h.WaitFor(context.Background(), harness.QueryFunc(func(context.Context) (any, error) {
		calls++
		return 42, nil
	}), time.Second)

	require.NoError(t, err)
	assert.Equal(t, 42, r)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.Sleeps())
}

func TestWaitFor_BecomesTruthy(t *testing.T) {
	h, _, clock := newHarness(t, "<p></p>")
	calls := 0

	r, err := h.WaitFor(context.Background(), harness.QueryFunc(func(context.Context) (any, error) {
		calls++
		if calls < 4 {
			return nil, nil
		}
		return "ready", nil
	}), time.Second)

	require.NoError(t, err)
	assert.Equal(t, "ready", r)
	assert.Equal(t, 4, calls)
	assert.Len(t, clock.Sleeps(), 3)
	for _, d := range clock.Sleeps() {
		assert.Equal(t, harness.DefaultPollInterval, d)
	}
}

func TestWaitFor_TimeoutMessage(t *testing.T) {
	h, _, _ := newHarness(t, "<p></p>")
	q := harness.Describe("() => false", func(context.Context) (any, error) { return false, nil })

	_, err := h.WaitFor(context.Background(), q, 100*time.Millisecond)

	require.Error(t, err)
	assert.True(t, harness.IsTimeout(err))
	assert.True(t, harness.IsHarnessFailure(err))
	assert.Equal(t, `waitFor timed out at 100ms, no result for "() => false"`, err.Error())
}

func TestWaitFor_DeadlineOverrun(t *testing.T) {
	// Calls happen at 0, 50, 100 and 150ms. The 100ms check is not strictly
	// greater than the timeout, so the loop goes one interval past it.
	h, _, clock := newHarness(t, "<p></p>")
	calls := 0

	_, err := h.WaitFor(context.Background(), harness.QueryFunc(func(context.Context) (any, error) {
		calls++
		return nil, nil
	}), 100*time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 150*time.Millisecond, clock.Elapsed())
}

func TestWaitFor_ZeroTimeoutPollsTwice(t *testing.T) {
	h, _, _ := newHarness(t, "<p></p>")
	calls := 0

	_, err := h.WaitFor(context.Background(), harness.QueryFunc(func(context.Context) (any, error) {
		calls++
		return 0, nil
	}), 0)

	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestWaitFor_QueryErrorPropagates(t *testing.T) {
	h, _, _ := newHarness(t, "<p></p>")
	boom := errors.New("boom")

	_, err := h.WaitFor(context.Background(), harness.QueryFunc(func(context.Context) (any, error) {
		return nil, boom
	}), time.Second)

	assert.ErrorIs(t, err, boom)
	assert.False(t, harness.IsHarnessFailure(err))
}

func TestWaitFor_ContextCancelled(t *testing.T) {
	h, _, _ := newHarness(t, "<p></p>")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.WaitFor(ctx, harness.QueryFunc(func(context.Context) (any, error) {
		return nil, nil
	}), time.Second)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, harness.IsTimeout(err))
}

func TestWaitFor_UndescribedQueryNamed(t *testing.T) {
	h, _, _ := newHarness(t, "<p></p>")

	_, err := h.WaitFor(context.Background(), harness.QueryFunc(func(context.Context) (any, error) {
		return "", nil
	}), 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "waitFor timed out at 0ms, no result for ")
	assert.Contains(t, err.Error(), "harness_test")
}

func TestWaitFor_FractionalTimeoutKept(t *testing.T) {
	h, _, _ := newHarness(t, "<p></p>")
	q := harness.Describe("q", func(context.Context) (any, error) { return nil, nil })

	_, err := h.WaitFor(context.Background(), q, harness.Millis(100.7))

	require.Error(t, err)
	assert.Equal(t, `waitFor timed out at 100.7ms, no result for "q"`, err.Error())
}

func TestPoller_DrivenStepByStep(t *testing.T) {
	h, _, clock := newHarness(t, "<p></p>")
	p := h.Poll(harness.Describe("q", func(context.Context) (any, error) { return nil, nil }), 100*time.Millisecond)

	// The first falsy result never times out, even past the budget.
	clock.Advance(time.Second)
	_, done, err := p.Observe(nil)
	require.NoError(t, err)
	assert.False(t, done)

	_, done, err = p.Observe(0)
	assert.True(t, done)
	assert.True(t, harness.IsTimeout(err))
}

func TestPoller_TruthyAfterDeadlineWins(t *testing.T) {
	h, _, clock := newHarness(t, "<p></p>")
	p := h.Poll(harness.Describe("q", func(context.Context) (any, error) { return nil, nil }), 0)

	_, done, _ := p.Observe(false)
	require.False(t, done)
	clock.Advance(time.Minute)

	v, done, err := p.Observe("late")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "late", v)
}

func TestPollSelector_QueryAndRelabel(t *testing.T) {
	h, doc, _ := newHarness(t, `<div id="root"></div>`)
	p := h.PollSelector(".late", 0)

	r, err := p.Query().Poll(context.Background())
	require.NoError(t, err)
	_, done, _ := p.Observe(r)
	require.False(t, done)

	_, err = doc.Append("#root", `<i class="late"></i>`)
	require.NoError(t, err)
	r, err = p.Query().Poll(context.Background())
	require.NoError(t, err)
	v, done, err := p.Observe(r)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "I", v.(*dom.Element).Tag())

	expired := h.PollSelectorAll("b", 0)
	expired.Observe(nil)
	_, _, err = expired.Observe(nil)
	assert.Equal(t, `querySelectorAll timed out at 0ms, no elements matching "b"`, err.Error())
}

func TestFormatMillis(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0"},
		{4 * time.Second, "4000"},
		{harness.Millis(100.7), "100.7"},
		{harness.Millis(0.5), "0.5"},
		{harness.Millis(-5), "-5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, harness.FormatMillis(tt.d))
	}
}

func TestMillis_Clamps(t *testing.T) {
	assert.Equal(t, time.Duration(math.MaxInt64), harness.Millis(math.NaN()))
	assert.Equal(t, time.Duration(math.MaxInt64), harness.Millis(math.Inf(1)))
	assert.Equal(t, time.Duration(math.MinInt64), harness.Millis(math.Inf(-1)))
	assert.Equal(t, 1500*time.Microsecond, harness.Millis(1.5))
}

func TestQuerySelector_Present(t *testing.T) {
	h, _, clock := newHarness(t, `<div id="a" class="x">hi</div>`)

	el, err := h.QuerySelector(context.Background(), "#a", time.Second)

	require.NoError(t, err)
	assert.Equal(t, "a", el.ID())
	assert.Empty(t, clock.Sleeps())
}

func TestQuerySelector_AppearsLater(t *testing.T) {
	h, doc, clock := newHarness(t, `<div id="root"></div>`)
	clock.OnSleep(func(n int) {
		if n == 2 {
			_, err := doc.Append("#root", `<span class="late">now</span>`)
			require.NoError(t, err)
		}
	})

	el, err := h.QuerySelector(context.Background(), ".late", time.Second)

	require.NoError(t, err)
	assert.Equal(t, "now", el.Text())
	assert.Len(t, clock.Sleeps(), 2)
}

func TestQuerySelector_TimeoutRelabeled(t *testing.T) {
	h, _, _ := newHarness(t, `<div></div>`)

	_, err := h.QuerySelector(context.Background(), ".missing", 200*time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, `querySelector timed out at 200ms, no elements matching ".missing"`, err.Error())

	var f *harness.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, harness.KindTimeout, f.Kind)
	assert.Equal(t, "querySelector", f.Op)

	var inner *harness.Failure
	require.ErrorAs(t, f.Cause, &inner)
	assert.Equal(t, "waitFor", inner.Op)
}

func TestQuerySelector_InvalidSelectorPassesThrough(t *testing.T) {
	h, _, _ := newHarness(t, `<div></div>`)

	_, err := h.QuerySelector(context.Background(), "div[", time.Second)

	var selErr *dom.SelectorError
	require.ErrorAs(t, err, &selErr)
	assert.False(t, harness.IsHarnessFailure(err))
	assert.True(t, len(harness.Classify(err).Message) > len(harness.ScriptErrorPrefix))
	assert.Equal(t, harness.KindScript, harness.Classify(err).Kind)
}

func TestQuerySelector_NoDocument(t *testing.T) {
	h := harness.New(nil)
	_, err := h.QuerySelector(context.Background(), "p", time.Second)
	assert.ErrorIs(t, err, harness.ErrNoDocument)
}

func TestQuerySelectorAll_Present(t *testing.T) {
	h, _, _ := newHarness(t, `<ul><li>a</li><li>b</li><li>c</li></ul>`)

	els, err := h.QuerySelectorAll(context.Background(), "li", time.Second)

	require.NoError(t, err)
	require.Len(t, els, 3)
	assert.Equal(t, "c", els[2].Text())
}

func TestQuerySelectorAll_EmptyTimesOut(t *testing.T) {
	h, _, clock := newHarness(t, `<ul></ul>`)

	_, err := h.QuerySelectorAll(context.Background(), "li", 100*time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, `querySelectorAll timed out at 100ms, no elements matching "li"`, err.Error())
	assert.Len(t, clock.Sleeps(), 3)
}

func TestOptions(t *testing.T) {
	h := harness.New(nil,
		harness.WithPollInterval(10*time.Millisecond),
		harness.WithDefaultTimeout(time.Second),
	)
	assert.Equal(t, 10*time.Millisecond, h.PollInterval())
	assert.Equal(t, time.Second, h.DefaultTimeout())

	d := harness.New(nil)
	assert.Equal(t, harness.DefaultPollInterval, d.PollInterval())
	assert.Equal(t, harness.DefaultTimeout, d.DefaultTimeout())
}

func TestRealClock_SleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := harness.RealClock{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, harness.RealClock{}.Sleep(context.Background(), time.Millisecond))
}
