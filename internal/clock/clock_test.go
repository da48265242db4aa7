package clock

import "testing"

func TestParseTime(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"07:30", 7*3600 + 30*60, false},
		{"23:59", 23*3600 + 59*60, false},
		{"23:59:59", 23*3600 + 59*60 + 59, false},
		{" 12:00 ", 12 * 3600, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"-1:00", 0, true},
		{"12", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseTime(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTime(%q) expected error, got %d", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTime(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTime(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestToHHMMSS(t *testing.T) {
	if got := ToHHMMSS(0); got != "00:00:00" {
		t.Errorf("ToHHMMSS(0) = %q", got)
	}
	if got := ToHHMMSS(82800); got != "23:00:00" {
		t.Errorf("ToHHMMSS(82800) = %q", got)
	}
	if got := ToHHMMSS(7*3600 + 5*60 + 9); got != "07:05:09" {
		t.Errorf("ToHHMMSS = %q", got)
	}
}
