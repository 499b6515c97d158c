package cli

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// withColor forces colour output on or off for the duration of a test.
func withColor(t *testing.T, on bool) {
	t.Helper()
	prev := colorEnabled
	colorEnabled = on
	t.Cleanup(func() { colorEnabled = prev })
}

func TestDotPad(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{
			name:  "status ordered_ecmp",
			input: "ordered_ecmp",
			width: 14,
			want:  "ordered_ecmp .",
		},
		{
			name:  "status tsa",
			input: "tsa",
			width: 6,
			want:  "tsa ..",
		},
		{
			name:  "status nexthops",
			input: "nexthops",
			width: 10,
			want:  "nexthops .",
		},
		{
			name:  "intent field",
			input: "endpoint",
			width: 20,
			want:  "endpoint " + strings.Repeat(".", 11),
		},
		{
			name:  "label wider than the column",
			input: "adv_prefix_profile_v4",
			width: 20,
			want:  "adv_prefix_profile_v4",
		},
		{
			name:  "one short of width",
			input: "endpoint_monitor",
			width: 17,
			want:  "endpoint_monitor",
		},
		{
			name:  "zero width",
			input: "vni",
			width: 0,
			want:  "vni",
		},
		{
			name:  "empty label",
			input: "",
			width: 4,
			want:  " ...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DotPad(tt.input, tt.width); got != tt.want {
				t.Errorf("DotPad(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.want)
			}
		})
	}
}

func TestDotPadAlignsIntentFields(t *testing.T) {
	fields := []string{"endpoint", "endpoint_monitor", "mac_address", "monitoring", "primary", "profile", "vni"}
	for _, f := range fields {
		if got := DotPad(f, 20); len(got) != 20 {
			t.Errorf("DotPad(%q, 20) len = %d, want 20", f, len(got))
		}
	}
}

func TestState(t *testing.T) {
	withColor(t, true)
	tests := []struct {
		state string
		code  string
	}{
		{"active", "32"},
		{"group", "32"},
		{"single", "32"},
		{"Up", "32"},
		{"inactive", "31"},
		{"uninstalled", "31"},
		{"Down", "31"},
		{"Unknown", "33"},
		{"pending", "33"},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			want := "\033[" + tt.code + "m" + tt.state + "\033[0m"
			if got := State(tt.state); got != want {
				t.Errorf("State(%q) = %q, want %q", tt.state, got, want)
			}
		})
	}
}

func TestStateWithoutColor(t *testing.T) {
	withColor(t, false)
	for _, s := range []string{"active", "inactive", "Unknown"} {
		if got := State(s); got != s {
			t.Errorf("State(%q) = %q with colour disabled", s, got)
		}
	}
	if got := Bold("Routes"); got != "Routes" {
		t.Errorf("Bold = %q with colour disabled", got)
	}
}

func TestColorFunctions(t *testing.T) {
	withColor(t, true)
	tests := []struct {
		name string
		fn   func(string) string
		code string
	}{
		{"Green", Green, "32"},
		{"Yellow", Yellow, "33"},
		{"Red", Red, "31"},
		{"Bold", Bold, "1"},
		{"Dim", Dim, "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := "\033[" + tt.code + "m100.100.1.1/32\033[0m"
			if got := tt.fn("100.100.1.1/32"); got != want {
				t.Errorf("%s = %q, want %q", tt.name, got, want)
			}
		})
	}
}

func TestList(t *testing.T) {
	tests := []struct {
		name  string
		items []string
		want  string
	}{
		{"no active endpoints", nil, "-"},
		{"empty members", []string{}, "-"},
		{"single endpoint", []string{"9.0.0.1"}, "9.0.0.1"},
		{"group members", []string{"9.0.0.1", "9.0.0.2", "fd00::1"}, "9.0.0.1,9.0.0.2,fd00::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, List(tt.items)); diff != "" {
				t.Errorf("List (-want +got):\n%s", diff)
			}
		})
	}
}
