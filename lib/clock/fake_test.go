// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockAfterFiresOnAdvance(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(3 * time.Second)

	clock.Advance(2 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	clock.Advance(1 * time.Second)
	select {
	case fired := <-channel:
		if !fired.Equal(epoch.Add(3 * time.Second)) {
			t.Errorf("fired at %v, want %v", fired, epoch.Add(3*time.Second))
		}
	default:
		t.Fatal("After did not fire after Advance")
	}

	if got := clock.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d after firing, want 0", got)
	}
}

func TestFakeClockAfterNonPositive(t *testing.T) {
	clock := Fake(epoch)
	for _, d := range []time.Duration{0, -time.Second} {
		select {
		case <-clock.After(d):
		default:
			t.Fatalf("After(%v) should fire immediately", d)
		}
	}
	if got := clock.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d, want 0", got)
	}
}

func TestFakeClockTimerStop(t *testing.T) {
	clock := Fake(epoch)
	timer := clock.NewTimer(time.Second)

	if !timer.Stop() {
		t.Fatal("Stop() on a pending timer = false, want true")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}
	if got := clock.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d after Stop, want 0", got)
	}

	clock.Advance(time.Second)
	select {
	case <-timer.C:
		t.Error("stopped timer fired")
	default:
	}
}

func TestFakeClockMultipleTimersFireInOrder(t *testing.T) {
	clock := Fake(epoch)
	late := clock.After(3 * time.Second)
	early := clock.After(1 * time.Second)

	clock.Advance(1 * time.Second)
	select {
	case <-early:
	default:
		t.Fatal("early timer did not fire")
	}
	select {
	case <-late:
		t.Fatal("late timer fired early")
	default:
	}

	clock.Advance(5 * time.Second)
	select {
	case <-late:
	default:
		t.Fatal("late timer did not fire")
	}
}

func TestFakeClockWaitForTimers(t *testing.T) {
	clock := Fake(epoch)

	for i := 0; i < 3; i++ {
		go func() {
			<-clock.After(5 * time.Second)
		}()
	}

	clock.WaitForTimers(3)
	if got := clock.PendingCount(); got != 3 {
		t.Fatalf("PendingCount() = %d, want 3", got)
	}
	clock.Advance(5 * time.Second)
}

func TestSleep(t *testing.T) {
	clock := Fake(epoch)
	done := make(chan error, 1)
	go func() {
		done <- Sleep(context.Background(), clock, 10*time.Second)
	}()

	clock.WaitForTimers(1)
	clock.Advance(10 * time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Sleep() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestSleepCancelled(t *testing.T) {
	clock := Fake(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Sleep(ctx, clock, time.Hour)
	}()

	clock.WaitForTimers(1)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Sleep() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after cancel")
	}
	if got := clock.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d after cancelled Sleep, want 0", got)
	}
}

func TestFakeClockImplementsClock(t *testing.T) {
	var _ Clock = (*FakeClock)(nil)
	var _ Clock = Real()
}

func TestFakeClockConcurrentAccess(t *testing.T) {
	clock := Fake(epoch)
	const goroutines = 10

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			clock.After(1 * time.Second)
			clock.Now()
		}()
	}
	wg.Wait()

	clock.WaitForTimers(goroutines)
	clock.Advance(1 * time.Second)
	if got := clock.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d, want 0", got)
	}
}
