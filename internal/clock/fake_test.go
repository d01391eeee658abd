package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var _ Clock = (*FakeClock)(nil)

func TestFakeNowAdvances(t *testing.T) {
	clk := Fake(epoch)
	if got := clk.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clk.Advance(90 * time.Minute)
	if got, want := clk.Now(), epoch.Add(90*time.Minute); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestAfterFiresAtDeadline(t *testing.T) {
	clk := Fake(epoch)
	ch := clk.After(time.Hour)

	clk.Advance(59 * time.Minute)
	select {
	case at := <-ch:
		t.Fatalf("After fired early at %v", at)
	default:
	}

	clk.Advance(time.Minute)
	select {
	case at := <-ch:
		if !at.Equal(epoch.Add(time.Hour)) {
			t.Fatalf("After fired at %v, want %v", at, epoch.Add(time.Hour))
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestAfterNonPositiveFiresImmediately(t *testing.T) {
	clk := Fake(epoch)
	select {
	case <-clk.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
	select {
	case <-clk.After(-time.Second):
	default:
		t.Fatal("After(-1s) did not fire immediately")
	}
}

func TestAfterFuncRunsInsideAdvance(t *testing.T) {
	clk := Fake(epoch)
	var calls int
	clk.AfterFunc(time.Hour, func() { calls++ })

	clk.Advance(30 * time.Minute)
	if calls != 0 {
		t.Fatalf("calls = %d before deadline, want 0", calls)
	}
	clk.Advance(30 * time.Minute)
	if calls != 1 {
		t.Fatalf("calls = %d after deadline, want 1", calls)
	}
	clk.Advance(time.Hour)
	if calls != 1 {
		t.Fatalf("calls = %d, one-shot must not repeat", calls)
	}
}

func TestAfterFuncNonPositiveRunsSynchronously(t *testing.T) {
	clk := Fake(epoch)
	var ran bool
	timer := clk.AfterFunc(0, func() { ran = true })
	if !ran {
		t.Fatal("AfterFunc(0) did not run before returning")
	}
	if timer.Stop() {
		t.Fatal("Stop() = true for an already-fired timer")
	}
}

func TestTimerStopPreventsFire(t *testing.T) {
	clk := Fake(epoch)
	var calls int
	timer := clk.AfterFunc(time.Hour, func() { calls++ })

	if !timer.Stop() {
		t.Fatal("Stop() = false for a pending timer")
	}
	if timer.Stop() {
		t.Fatal("second Stop() = true, want false")
	}

	clk.Advance(2 * time.Hour)
	if calls != 0 {
		t.Fatalf("calls = %d after stop, want 0", calls)
	}
}

func TestAdvanceFiresInDeadlineOrder(t *testing.T) {
	clk := Fake(epoch)
	var order []string
	clk.AfterFunc(3*time.Hour, func() { order = append(order, "third") })
	clk.AfterFunc(time.Hour, func() { order = append(order, "first") })
	clk.AfterFunc(2*time.Hour, func() { order = append(order, "second") })

	clk.Advance(3 * time.Hour)
	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("fired %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("fired %v, want %v", order, want)
		}
	}
}

func TestAdvanceRunsCallbacksArmedDuringAdvance(t *testing.T) {
	clk := Fake(epoch)
	var chained bool
	clk.AfterFunc(time.Hour, func() {
		// Re-arm inside the window; the same Advance must pick it up.
		clk.AfterFunc(time.Hour, func() { chained = true })
	})

	clk.Advance(2 * time.Hour)
	if !chained {
		t.Fatal("callback armed during Advance did not fire within the window")
	}
}

func TestTickerFiresPerInterval(t *testing.T) {
	clk := Fake(epoch)
	ticker := clk.NewTicker(time.Minute)
	defer ticker.Stop()

	// The channel holds one tick; a multi-interval Advance drops the
	// backlog just like time.Ticker.
	clk.Advance(time.Minute)
	select {
	case at := <-ticker.C:
		if !at.Equal(epoch.Add(time.Minute)) {
			t.Fatalf("tick at %v, want %v", at, epoch.Add(time.Minute))
		}
	default:
		t.Fatal("ticker did not tick after one interval")
	}

	clk.Advance(time.Minute)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not tick after the second interval")
	}

	ticker.Stop()
	clk.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker ticked")
	default:
	}
}

func TestSleepReturnsOnAdvance(t *testing.T) {
	clk := Fake(epoch)

	done := make(chan struct{})
	go func() {
		clk.Sleep(time.Hour)
		close(done)
	}()

	clk.WaitForTimers(1)
	clk.Advance(time.Hour)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Sleep did not return after Advance past its deadline")
	}
}

func TestPendingCount(t *testing.T) {
	clk := Fake(epoch)
	if got := clk.PendingCount(); got != 0 {
		t.Fatalf("PendingCount() = %d, want 0", got)
	}

	timer := clk.AfterFunc(time.Hour, func() {})
	clk.After(2 * time.Hour)
	if got := clk.PendingCount(); got != 2 {
		t.Fatalf("PendingCount() = %d, want 2", got)
	}

	timer.Stop()
	if got := clk.PendingCount(); got != 1 {
		t.Fatalf("PendingCount() after stop = %d, want 1", got)
	}

	clk.Advance(2 * time.Hour)
	if got := clk.PendingCount(); got != 0 {
		t.Fatalf("PendingCount() after fire = %d, want 0", got)
	}
}
