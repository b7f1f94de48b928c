package timetable

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		input   string
		want    State
		wantErr bool
	}{
		{"on", StateOn, false},
		{"off", StateOff, false},
		{"ON", StateOn, false},
		{" Off ", StateOff, false},
		{"", StateOff, true},
		{"true", StateOff, true},
		{"1", StateOff, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseState(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidState) {
					t.Errorf("ParseState(%q) error = %v, want ErrInvalidState", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseState(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseState(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewTimeOfDay(t *testing.T) {
	tests := []struct {
		h, m, s int
		wantErr bool
	}{
		{0, 0, 0, false},
		{23, 59, 59, false},
		{12, 30, 15, false},
		{24, 0, 0, true},
		{-1, 0, 0, true},
		{12, 60, 0, true},
		{12, 0, 60, true},
	}
	for _, tt := range tests {
		got, err := NewTimeOfDay(tt.h, tt.m, tt.s)
		if tt.wantErr {
			if !errors.Is(err, ErrMalformedTime) {
				t.Errorf("NewTimeOfDay(%d, %d, %d) error = %v, want ErrMalformedTime", tt.h, tt.m, tt.s, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NewTimeOfDay(%d, %d, %d) error = %v", tt.h, tt.m, tt.s, err)
			continue
		}
		if got.Hour() != tt.h || got.Minute() != tt.m || got.Second() != tt.s {
			t.Errorf("NewTimeOfDay(%d, %d, %d) = %s", tt.h, tt.m, tt.s, got)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"08:00:00", "08:00:00", false},
		{"08:00", "08:00:00", false},
		{"23:59:59", "23:59:59", false},
		{"08:00:00.750", "08:00:00", false},
		{"08:00:00Z", "08:00:00", false},
		{"08:00:00+02:00", "08:00:00", false},
		{"08:00:00.5-05:00", "08:00:00", false},
		{" 07:15 ", "07:15:00", false},
		{"", "", true},
		{"24:00:00", "", true},
		{"8am", "", true},
		{"12:61", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedTime) {
					t.Errorf("ParseTimeOfDay(%q) error = %v, want ErrMalformedTime", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeOfDay(%q) error = %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseTimeOfDay(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestTimeOfDayOf_DropsSubSecond(t *testing.T) {
	at := time.Date(2026, 3, 2, 8, 0, 0, 999_000_000, time.UTC)
	if got := TimeOfDayOf(at); got != MustTimeOfDay(8, 0, 0) {
		t.Errorf("TimeOfDayOf() = %s, want 08:00:00", got)
	}
}

func TestTimeOfDay_On(t *testing.T) {
	loc := time.FixedZone("test", -3*60*60)
	day := time.Date(2026, 7, 14, 23, 30, 0, 0, loc)

	got := MustTimeOfDay(6, 15, 30).On(day)
	want := time.Date(2026, 7, 14, 6, 15, 30, 0, loc)
	if !got.Equal(want) {
		t.Errorf("On() = %v, want %v", got, want)
	}
}

func TestEvent_JSON(t *testing.T) {
	e := Event{Time: MustTimeOfDay(20, 0, 0), State: StateOff}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"time":"20:00:00","state":"off"}` {
		t.Errorf("Marshal() = %s", data)
	}

	var decoded Event
	if err := json.Unmarshal([]byte(`{"time":"06:30","state":"on"}`), &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Time != MustTimeOfDay(6, 30, 0) || decoded.State != StateOn {
		t.Errorf("Unmarshal() = %+v", decoded)
	}

	if err := json.Unmarshal([]byte(`{"time":"06:30","state":"maybe"}`), &decoded); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Unmarshal(bad state) error = %v, want ErrInvalidState", err)
	}
}
