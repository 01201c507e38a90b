package version

import "testing"

func TestParseSemver(t *testing.T) {
	tests := []struct {
		input string
		want  [3]int
	}{
		{"v1.2.3", [3]int{1, 2, 3}},
		{"1.2.3", [3]int{1, 2, 3}},
		{"v0.4.0", [3]int{0, 4, 0}},

		// prerelease and build metadata strip down to the core triple
		{"v1.0.0-beta", [3]int{1, 0, 0}},
		{"v2.0.0-rc.1", [3]int{2, 0, 0}},
		{"v1.0.0+build123", [3]int{1, 0, 0}},
		{"v1.0.0-beta+build123", [3]int{1, 0, 0}},

		// missing parts default to zero
		{"2.0", [3]int{2, 0, 0}},
		{"v5", [3]int{5, 0, 0}},

		{"", [3]int{0, 0, 0}},
		{"not-a-version", [3]int{0, 0, 0}},

		{"v99.99.99", [3]int{99, 99, 99}},
		{"0.0.1", [3]int{0, 0, 1}},
	}
	for _, tt := range tests {
		if got := parseSemver(tt.input); got != tt.want {
			t.Errorf("parseSemver(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestIsNewer(t *testing.T) {
	tests := []struct {
		latest  string
		current string
		want    bool
	}{
		{"v1.0.0", "v0.9.9", true},
		{"v0.2.0", "v0.1.0", true},
		{"v0.1.1", "v0.1.0", true},
		{"v0.1.10", "v0.1.9", true},

		{"v0.1.0", "v0.1.0", false},
		{"v0.1.0", "v0.2.0", false},
		{"v1.0.0", "v1.0.1", false},

		// prerelease and build tags are ignored for the comparison
		{"v1.0.0-beta", "v1.0.0", false},
		{"v2.0.0-rc.1", "v1.9.9", true},
		{"v1.0.0+build1", "v1.0.0+build2", false},

		// the v prefix is optional on either side
		{"1.0.0", "v0.9.9", true},
		{"v1.0.0", "0.9.9", true},

		{"v0.0.0", "v0.0.0", false},
		{"v1.100.0", "v1.99.99", true},
	}
	for _, tt := range tests {
		if got := isNewer(tt.latest, tt.current); got != tt.want {
			t.Errorf("isNewer(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.want)
		}
	}
}
