package main

import (
	"bytes"
	"strings"
	"testing"
)

// TestVersionFallbacks checks that each build field has a value even in a
// test binary without ldflags or VCS stamping.
func TestVersionFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		get  func() string
	}{
		{name: "version", get: getVersion},
		{name: "commit", get: getCommit},
		{name: "date", get: getDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.get() == "" {
				t.Errorf("%s is empty", tt.name)
			}
		})
	}

	t.Run("commit is short", func(t *testing.T) {
		t.Parallel()
		if c := getCommit(); c != "unknown" && len(c) > 7 {
			t.Errorf("expected at most 7 characters, got %q", c)
		}
	})
}

func TestBuildSettingUnknownKey(t *testing.T) {
	t.Parallel()

	if got := buildSetting("ctfindex.no-such-setting"); got != "" {
		t.Errorf("expected empty value, got %q", got)
	}
}

func TestNewVersionCmd(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cmd := NewVersionCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs(nil)

	if cmd.Use != "version" {
		t.Errorf("expected Use to be 'version', got %q", cmd.Use)
	}
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	if lines[0] != "ctfindex version "+getVersion() {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "commit: "+getCommit()) {
		t.Errorf("unexpected commit line %q", lines[1])
	}
	if !strings.Contains(lines[2], "built:  "+getDate()) {
		t.Errorf("unexpected date line %q", lines[2])
	}
}
