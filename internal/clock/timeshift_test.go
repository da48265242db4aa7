package clock

import "testing"

func TestWrapOffset(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		want   int
	}{
		{"zero", 0, 0},
		{"one_hour", 3600, 3600},
		{"minus_one_hour", -3600, -3600},
		// +12h and -12h are the same ring point; the wrap formula lands
		// on the negative representative.
		{"twelve_hours", HalfDay, -HalfDay},
		{"minus_twelve_hours", -HalfDay, -HalfDay},
		{"over_twelve_wraps_negative", 13 * 3600, -11 * 3600},
		{"800_minutes_wraps", 800 * 60, 800*60 - Day},
		{"minus_thirteen_wraps_positive", -13 * 3600, 11 * 3600},
		{"full_day", Day, 0},
		{"two_days", 2 * Day, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wrapOffset(tt.offset); got != tt.want {
				t.Errorf("wrapOffset(%d) = %d, want %d", tt.offset, got, tt.want)
			}
		})
	}
}

func TestTimeshiftSetIdempotent(t *testing.T) {
	ts := NewTimeshift("light.test", nil)
	ts.Set(800 * 60)
	first := ts.Offset()
	ts.Set(800 * 60)
	if got := ts.Offset(); got != first {
		t.Errorf("Set twice changed offset: %d != %d", got, first)
	}
	// 800 minutes must map onto the same ring position as 800-1440 minutes.
	ts.Set(800*60 - 1440*60)
	if got := ts.Offset(); got != first {
		t.Errorf("Set(800m-1440m) = %d, want %d", got, first)
	}
}

func TestTimeshiftNowWraps(t *testing.T) {
	ts := NewTimeshift("light.test", nil)
	ts.nowFn = func() int { return 23 * 3600 }

	ts.Set(2 * 3600)
	if got := ts.Now(); got != 3600 {
		t.Errorf("Now() = %d, want %d", got, 3600)
	}

	ts.nowFn = func() int { return 3600 }
	ts.Set(-2 * 3600)
	if got := ts.Now(); got != 23*3600 {
		t.Errorf("Now() = %d, want %d", got, 23*3600)
	}
}

func TestTimeshiftCallback(t *testing.T) {
	var got []int
	ts := NewTimeshift("light.test", func(offset int) { got = append(got, offset) })

	ts.Set(3600)
	ts.Shift(1800)
	ts.Shift(-3600)

	want := []int{3600, 5400, 1800}
	if len(got) != len(want) {
		t.Fatalf("callback invoked %d times, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("callback[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
