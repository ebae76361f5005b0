package main

import (
	"bytes"
	"encoding/json"
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestResolveBuildInfo(t *testing.T) {
	t.Parallel()

	vcs := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.4.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs", Value: "git"},
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2026-02-01T10:00:00Z"},
		},
	}

	tests := []struct {
		name     string
		info     *debug.BuildInfo
		ldflags  [3]string
		wantVer  string
		wantHash string
		wantDate string
	}{
		{
			name:     "no build information",
			wantVer:  "(devel)",
			wantHash: "unknown",
			wantDate: "unknown",
		},
		{
			name:     "module and vcs settings",
			info:     vcs,
			wantVer:  "v0.4.1",
			wantHash: "0123456",
			wantDate: "2026-02-01T10:00:00Z",
		},
		{
			name:     "link-time values win",
			info:     vcs,
			ldflags:  [3]string{"v1.0.0", "fedcba9876", "2026-03-01"},
			wantVer:  "v1.0.0",
			wantHash: "fedcba9",
			wantDate: "2026-03-01",
		},
		{
			name:     "short commit kept whole",
			info:     &debug.BuildInfo{Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}}},
			wantVer:  "(devel)",
			wantHash: "abc",
			wantDate: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := resolveBuildInfo(tt.info, tt.ldflags[0], tt.ldflags[1], tt.ldflags[2])
			if got.Version != tt.wantVer {
				t.Errorf("Version = %q, want %q", got.Version, tt.wantVer)
			}
			if got.Commit != tt.wantHash {
				t.Errorf("Commit = %q, want %q", got.Commit, tt.wantHash)
			}
			if got.Date != tt.wantDate {
				t.Errorf("Date = %q, want %q", got.Date, tt.wantDate)
			}
			if got.GoVersion != runtime.Version() {
				t.Errorf("GoVersion = %q, want %q", got.GoVersion, runtime.Version())
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	t.Run("text", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cmd := NewVersionCmd()
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := strings.TrimSpace(buf.String()), currentBuild().String(); got != want {
			t.Errorf("output = %q, want %q", got, want)
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cmd := NewVersionCmd()
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{"--json"})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got buildInfo
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
		}
		if got != currentBuild() {
			t.Errorf("decoded %+v, want %+v", got, currentBuild())
		}
	})

	t.Run("rejects arguments", func(t *testing.T) {
		t.Parallel()

		cmd := NewVersionCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"extra"})
		if err := cmd.Execute(); err == nil {
			t.Error("expected error for extra argument")
		}
	})
}
