package capture_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/capture"
)

func TestArmFromIdleOnly(t *testing.T) {
	c := capture.NewCoordinator(capture.Options{RetryBudget: 1})

	cycle, err := c.Arm()
	if err != nil {
		t.Fatalf("Arm() error: %v", err)
	}
	if s, cur := c.State(); s != capture.Armed || cur != cycle {
		t.Fatalf("State() = %v/%d, want armed/%d", s, cur, cycle)
	}

	// Scenario: second press before the first cycle reached Idle.
	if _, err := c.Arm(); !errors.Is(err, capture.ErrCaptureBusy) {
		t.Fatalf("second Arm() err = %v, want ErrCaptureBusy", err)
	}

	cl, ok := c.Claim()
	if !ok {
		t.Fatal("Claim() failed while armed")
	}
	if !c.Succeed(cl) {
		t.Fatal("Succeed() failed")
	}

	if _, err := c.Arm(); !errors.Is(err, capture.ErrCaptureBusy) {
		t.Fatalf("Arm() while captured err = %v, want ErrCaptureBusy", err)
	}

	if prev := c.Reset(); prev != capture.Captured {
		t.Errorf("Reset() left %v, want captured", prev)
	}
	if _, err := c.Arm(); err != nil {
		t.Errorf("Arm() after Reset error: %v", err)
	}
}

// TestClaimExactlyOnce simulates many frames while Armed: only the first claims.
func TestClaimExactlyOnce(t *testing.T) {
	c := capture.NewCoordinator(capture.Options{RetryBudget: 3})
	if _, err := c.Arm(); err != nil {
		t.Fatal(err)
	}

	claims := 0
	for frame := 0; frame < 10; frame++ {
		if _, ok := c.Claim(); ok {
			claims++
		}
	}
	if claims != 1 {
		t.Errorf("claims = %d, want 1", claims)
	}
	t.Logf("✅ 10 frames while armed, %d claim", claims)
}

// TestClaimExactlyOnceConcurrent races several producers against one armed cycle.
func TestClaimExactlyOnceConcurrent(t *testing.T) {
	for round := 0; round < 200; round++ {
		c := capture.NewCoordinator(capture.Options{RetryBudget: 1})
		if _, err := c.Arm(); err != nil {
			t.Fatal(err)
		}

		var claims atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if cl, ok := c.Claim(); ok {
					claims.Add(1)
					c.Succeed(cl)
				}
			}()
		}
		wg.Wait()

		if got := claims.Load(); got != 1 {
			t.Fatalf("round %d: claims = %d, want 1", round, got)
		}
	}
	t.Logf("✅ 200 rounds x 8 producers: exactly one claim each")
}

func TestFailRetriesThenExhausts(t *testing.T) {
	c := capture.NewCoordinator(capture.Options{RetryBudget: 3})
	cycle, _ := c.Arm()

	for attempt := 1; attempt <= 3; attempt++ {
		cl, ok := c.Claim()
		if !ok {
			t.Fatalf("attempt %d: Claim() failed", attempt)
		}
		if cl.Attempt != attempt || cl.Cycle != cycle {
			t.Fatalf("claim = %+v, want attempt %d cycle %d", cl, attempt, cycle)
		}

		out := c.Fail(cl)
		want := capture.Retry
		if attempt == 3 {
			want = capture.Exhausted
		}
		if out != want {
			t.Fatalf("attempt %d: Fail() = %v, want %v", attempt, out, want)
		}
	}

	if !c.Current(cycle, capture.Idle) {
		t.Error("exhausted cycle should be Idle with the same cycle number")
	}
	if _, ok := c.Claim(); ok {
		t.Error("Claim() succeeded after exhaustion")
	}
	t.Logf("✅ Retry budget exhausted after 3 attempts (cycle=%d)", cycle)
}

func TestAttemptsResetPerCycle(t *testing.T) {
	c := capture.NewCoordinator(capture.Options{RetryBudget: 2})

	c.Arm()
	cl, _ := c.Claim()
	c.Fail(cl)
	c.Reset()

	c.Arm()
	cl, _ = c.Claim()
	if cl.Attempt != 1 {
		t.Errorf("new cycle attempt = %d, want 1", cl.Attempt)
	}
}

// TestResetCancelsInFlight validates a Reset during extraction invalidates the attempt.
func TestResetCancelsInFlight(t *testing.T) {
	c := capture.NewCoordinator(capture.Options{RetryBudget: 2})
	cycle, _ := c.Arm()

	cl, ok := c.Claim()
	if !ok {
		t.Fatal("Claim() failed")
	}

	c.Reset() // user dismissed while the extraction was running

	if c.Succeed(cl) {
		t.Error("Succeed() accepted a cancelled cycle")
	}
	if c.Current(cycle, capture.Captured) {
		t.Error("cancelled cycle reported current")
	}
	if s, _ := c.State(); s != capture.Idle {
		t.Errorf("State() = %v, want idle", s)
	}

	cl2 := capture.Claim{Cycle: cycle, Attempt: 1}
	if out := c.Fail(cl2); out != capture.Cancelled {
		t.Errorf("Fail() on cancelled cycle = %v, want Cancelled", out)
	}
}

func TestExpire(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }

	c := capture.NewCoordinator(capture.Options{RetryBudget: 1, ArmTimeout: 2 * time.Second, Now: clock})
	cycle, _ := c.Arm()

	now = now.Add(time.Second)
	if _, ok := c.Expire(); ok {
		t.Fatal("Expire() fired before timeout")
	}

	now = now.Add(2 * time.Second)
	got, ok := c.Expire()
	if !ok || got != cycle {
		t.Fatalf("Expire() = %d, %v; want %d, true", got, ok, cycle)
	}
	if !c.Current(cycle, capture.Idle) {
		t.Error("expired cycle should be Idle")
	}
	if _, ok := c.Expire(); ok {
		t.Error("Expire() fired twice")
	}
}

func TestExpireDisabled(t *testing.T) {
	c := capture.NewCoordinator(capture.Options{})
	c.Arm()
	if _, ok := c.Expire(); ok {
		t.Error("Expire() fired with zero timeout")
	}
}

func TestExpireSkipsInFlight(t *testing.T) {
	now := time.Unix(0, 0)
	c := capture.NewCoordinator(capture.Options{ArmTimeout: time.Millisecond, Now: func() time.Time { return now }})
	c.Arm()
	cl, _ := c.Claim()

	now = now.Add(time.Hour)
	if _, ok := c.Expire(); ok {
		t.Error("Expire() interrupted an in-flight extraction")
	}
	if !c.Succeed(cl) {
		t.Error("Succeed() failed after skipped expiry")
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[capture.State]string{
		capture.Idle:     "idle",
		capture.Armed:    "armed",
		capture.Captured: "captured",
		capture.State(9): "unknown",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

// TestDismissedOnlyByReset: a cycle that ended on its own stays deliverable
// across a new Arm; only a consumer Reset dismisses it.
func TestDismissedOnlyByReset(t *testing.T) {
	c := capture.NewCoordinator(capture.Options{RetryBudget: 1})

	first, _ := c.Arm()
	cl, _ := c.Claim()
	if out := c.Fail(cl); out != capture.Exhausted {
		t.Fatalf("Fail() = %v, want Exhausted", out)
	}

	second, err := c.Arm()
	if err != nil {
		t.Fatalf("re-Arm() after failure error: %v", err)
	}
	if c.Dismissed(first) {
		t.Errorf("cycle %d dismissed by a new Arm", first)
	}

	c.Reset()
	if !c.Dismissed(first) || !c.Dismissed(second) {
		t.Errorf("Dismissed(%d)=%v Dismissed(%d)=%v after Reset, want true",
			first, c.Dismissed(first), second, c.Dismissed(second))
	}

	third, _ := c.Arm()
	if c.Dismissed(third) {
		t.Errorf("fresh cycle %d reported dismissed", third)
	}
	t.Logf("✅ Dismissed tracks Reset only (cycles %d, %d, %d)", first, second, third)
}
