package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nao1215/siteindex/internal/report"
)

// Overridden at link time, e.g.
// -ldflags "-X main.version=v1.2.0 -X main.commit=abc1234 -X main.date=2026-01-02".
var (
	version = ""
	commit  = ""
	date    = ""
)

const shortCommitLen = 7

// buildInfo describes the running binary.
type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
}

// currentBuild reads the build information on first use.
var currentBuild = sync.OnceValue(func() buildInfo {
	info, _ := debug.ReadBuildInfo()
	return resolveBuildInfo(info, version, commit, date)
})

// resolveBuildInfo merges link-time values over the module build
// information. info may be nil when the binary was built without module
// support.
func resolveBuildInfo(info *debug.BuildInfo, ldVersion, ldCommit, ldDate string) buildInfo {
	b := buildInfo{
		Version:   "(devel)",
		Commit:    "unknown",
		Date:      "unknown",
		GoVersion: runtime.Version(),
	}
	if info != nil {
		if info.Main.Version != "" {
			b.Version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				b.Commit = s.Value
			case "vcs.time":
				b.Date = s.Value
			}
		}
	}
	if ldVersion != "" {
		b.Version = ldVersion
	}
	if ldCommit != "" {
		b.Commit = ldCommit
	}
	if ldDate != "" {
		b.Date = ldDate
	}
	if len(b.Commit) > shortCommitLen {
		b.Commit = b.Commit[:shortCommitLen]
	}
	return b
}

func getVersion() string {
	return currentBuild().Version
}

func (b buildInfo) String() string {
	return fmt.Sprintf("siteindex %s (commit %s, built %s, %s)", b.Version, b.Commit, b.Date, b.GoVersion)
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := currentBuild()
			if getBoolFlag(cmd, "json") {
				_, err := report.NewJSONWriter(cmd.OutOrStdout(), report.WithPrettyPrint()).WriteValue(b)
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), b)
			return err
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Print build information as JSON")
	return cmd
}
