package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"wavetrace/internal/manifest"
	"wavetrace/internal/version"
)

// buildReport is what `wavetrace version` prints: the release, the
// $version header stamped into every trace, and the formats this binary
// reads and writes.
type buildReport struct {
	Version  string `json:"version"`
	Header   string `json:"trace_header"`
	Commit   string `json:"commit,omitempty"`
	Built    string `json:"built,omitempty"`
	Manifest uint16 `json:"manifest_schema"`
	Go       string `json:"go"`
}

var (
	versionFormat     string
	versionHeaderOnly bool
)

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
	versionCmd.Flags().BoolVar(&versionHeaderOnly, "header", false, "print only the $version line written into traces")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show wavetrace build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		report := collectBuildReport(debug.ReadBuildInfo)
		out := cmd.OutOrStdout()
		if versionHeaderOnly {
			fmt.Fprintln(out, report.Header)
			return nil
		}
		switch strings.ToLower(versionFormat) {
		case "pretty":
			writeBuildReport(out, report)
			return nil
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		default:
			return fmt.Errorf("unsupported format %q (must be pretty or json)", versionFormat)
		}
	},
}

// collectBuildReport falls back to the VCS stamp of the binary when no
// commit was injected through -ldflags.
func collectBuildReport(read func() (*debug.BuildInfo, bool)) buildReport {
	r := buildReport{
		Version:  version.Plain(),
		Header:   version.Header(),
		Commit:   strings.TrimSpace(version.GitCommit),
		Built:    strings.TrimSpace(version.BuildDate),
		Manifest: manifest.Schema,
		Go:       runtime.Version(),
	}
	if r.Commit != "" && r.Built != "" {
		return r
	}
	info, ok := read()
	if !ok {
		return r
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if r.Commit == "" {
				r.Commit = s.Value
			}
		case "vcs.time":
			if r.Built == "" {
				r.Built = s.Value
			}
		}
	}
	return r
}

func writeBuildReport(out io.Writer, r buildReport) {
	fmt.Fprintf(out, "wavetrace %s\n", version.Version)
	fmt.Fprintf(out, "  trace header:    %s\n", r.Header)
	if r.Commit != "" {
		fmt.Fprintf(out, "  commit:          %s\n", r.Commit)
	}
	if r.Built != "" {
		fmt.Fprintf(out, "  built:           %s\n", r.Built)
	}
	fmt.Fprintf(out, "  manifest schema: %d\n", r.Manifest)
	fmt.Fprintf(out, "  go:              %s\n", r.Go)
}
