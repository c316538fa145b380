package ratelimit

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// fakeClock is advanced by hand; Limiter reads it through nowFunc.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func clocked(perSecond float64, burst int) (*Limiter, *fakeClock) {
	c := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter(perSecond, burst)
	l.nowFunc = c.now
	return l, c
}

// drain counts how many calls for key succeed before the first rejection.
func drain(l *Limiter, key string) int {
	n := 0
	for l.Allow(key) {
		n++
		if n > 10_000 {
			break
		}
	}
	return n
}

func TestLimiter_Refill(t *testing.T) {
	tests := []struct {
		name      string
		perSecond float64
		burst     int
		wait      time.Duration
		want      int // calls allowed after the wait
	}{
		{name: "no wait", perSecond: 10, burst: 2, wait: 0, want: 0},
		{name: "one token", perSecond: 10, burst: 2, wait: 100 * time.Millisecond, want: 1},
		{name: "two tokens", perSecond: 10, burst: 2, wait: 200 * time.Millisecond, want: 2},
		{name: "capped at burst", perSecond: 100, burst: 3, wait: 10 * time.Second, want: 3},
		{name: "half token is not enough", perSecond: 2, burst: 4, wait: 250 * time.Millisecond, want: 0},
		{name: "zero rate never refills", perSecond: 0, burst: 2, wait: time.Hour, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, clock := clocked(tt.perSecond, tt.burst)
			if got := drain(l, "k"); got != tt.burst {
				t.Fatalf("initial burst = %d, want %d", got, tt.burst)
			}
			clock.advance(tt.wait)
			if got := drain(l, "k"); got != tt.want {
				t.Errorf("allowed after %v = %d, want %d", tt.wait, got, tt.want)
			}
		})
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := clocked(1, 1)
	if !l.Allow("gfp") || l.Allow("gfp") {
		t.Fatal("gfp should get exactly one call")
	}
	if !l.Allow("lysozyme") {
		t.Error("lysozyme shares no bucket with gfp")
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l, _ := clocked(1000, 50)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	// The clock is frozen so only the initial burst can be spent.
	if got := allowed.Load(); got != 50 {
		t.Errorf("allowed %d of 200 concurrent calls, want 50", got)
	}
}

func TestPerMinute(t *testing.T) {
	l := PerMinute(30, 4)
	if l.Rate() != 0.5 || l.Burst() != 4 {
		t.Errorf("PerMinute(30, 4) = %v/s burst %d, want 0.5/s burst 4", l.Rate(), l.Burst())
	}
}

func TestNewToolLimiters(t *testing.T) {
	limiters := NewToolLimiters()

	var tools []string
	for name := range limiters {
		tools = append(tools, name)
	}
	sort.Strings(tools)
	want := []string{
		"protomech_add_feature",
		"protomech_align",
		"protomech_circuit",
		"protomech_export",
		"protomech_influences",
		"protomech_rank_layer",
		"protomech_remove_nodes",
		"protomech_restore",
		"protomech_save",
	}
	if diff := cmp.Diff(want, tools); diff != "" {
		t.Errorf("limited tools mismatch (-want +got):\n%s", diff)
	}

	bursts := map[string]int{
		"protomech_influences": 20,
		"protomech_align":      5,
		"protomech_save":       2,
		"protomech_export":     2,
	}
	for tool, burst := range bursts {
		if got := limiters[tool].Burst(); got != burst {
			t.Errorf("%s burst = %d, want %d", tool, got, burst)
		}
	}
}

func TestCheckLimit(t *testing.T) {
	limiters := NewToolLimiters()

	for i := 0; i < 100; i++ {
		if err := CheckLimit(limiters, "protomech_info"); err != nil {
			t.Fatalf("unlimited tool rejected on call %d: %v", i+1, err)
		}
	}

	for i := 0; i < 2; i++ {
		if err := CheckLimit(limiters, "protomech_export"); err != nil {
			t.Fatalf("export call %d rejected: %v", i+1, err)
		}
	}
	err := CheckLimit(limiters, "protomech_export")
	if err == nil {
		t.Fatal("third export inside a minute should be rejected")
	}
	if !strings.Contains(err.Error(), "protomech_export") {
		t.Errorf("error %q should name the tool", err)
	}
}
