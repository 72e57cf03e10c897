package version

import "testing"

func TestGetShortCommit(t *testing.T) {
	orig := GitCommit
	defer func() { GitCommit = orig }()

	GitCommit = "abcdef123456"
	if got := GetShortCommit(); got != "abcdef1" {
		t.Errorf("GetShortCommit() = %q, want abcdef1", got)
	}

	GitCommit = "abc"
	if got := GetShortCommit(); got != "abc" {
		t.Errorf("short hash should pass through, got %q", got)
	}
}
