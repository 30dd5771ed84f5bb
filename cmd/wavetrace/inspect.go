package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wavetrace/internal/manifest"
	"wavetrace/internal/vcd"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] <trace.vcd>...",
	Short: "Summarise value change dumps",
	Long:  `Parse one or more trace files concurrently and print their signal counts, change counts and end times`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().String("format", "table", "output format (table|json)")
	inspectCmd.Flags().Bool("signals", false, "list every signal with its change count")
	inspectCmd.Flags().String("manifest", "", "signal manifest adding kind and domain columns")
	inspectCmd.Flags().Int("jobs", 0, "max parallel parsers (0=auto)")
}

// traceSummary describes one parsed trace file.
type traceSummary struct {
	Path      string          `json:"path"`
	Timescale string          `json:"timescale"`
	Signals   int             `json:"signals"`
	Changes   int             `json:"changes"`
	End       uint64          `json:"end"`
	PerSignal []signalSummary `json:"per_signal,omitempty"`
}

type signalSummary struct {
	Path    string `json:"path"`
	ID      string `json:"id"`
	Width   int    `json:"width"`
	Changes int    `json:"changes"`
	Kind    string `json:"kind,omitempty"`
	Domain  string `json:"domain,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if format != "table" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be table or json)", format)
	}
	perSignal, err := cmd.Flags().GetBool("signals")
	if err != nil {
		return fmt.Errorf("failed to get signals flag: %w", err)
	}
	manifestPath, err := cmd.Flags().GetString("manifest")
	if err != nil {
		return fmt.Errorf("failed to get manifest flag: %w", err)
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}

	var m *manifest.Manifest
	if manifestPath != "" {
		if m, err = manifest.Read(manifestPath); err != nil {
			return err
		}
		perSignal = true
	}

	summaries, err := summarize(cmd.Context(), args, jobs, perSignal, m)
	if err != nil {
		return err
	}
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}
	renderSummaries(cmd.OutOrStdout(), summaries)
	return nil
}

// summarize parses paths concurrently. Results keep the argument order.
func summarize(ctx context.Context, paths []string, jobs int, perSignal bool, m *manifest.Manifest) ([]traceSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	// каждая горутина пишет только в свой индекс
	results := make([]traceSummary, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(paths)))
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tr, err := vcd.ParseFile(path)
			if err != nil {
				return err
			}
			results[i] = summarizeTrace(path, tr, perSignal, m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func summarizeTrace(path string, tr *vcd.Trace, perSignal bool, m *manifest.Manifest) traceSummary {
	s := traceSummary{
		Path:      path,
		Timescale: tr.Timescale,
		Signals:   len(tr.Vars),
		Changes:   len(tr.Records),
		End:       tr.End(),
	}
	if !perSignal {
		return s
	}
	counts := make(map[vcd.ID]int, len(tr.Vars))
	for _, r := range tr.Records {
		counts[r.ID]++
	}
	for _, v := range tr.Vars {
		sig := signalSummary{Path: v.Path(), ID: string(v.ID), Width: v.Width, Changes: counts[v.ID]}
		if m != nil {
			if e, ok := m.Lookup(string(v.ID)); ok {
				sig.Kind, sig.Domain = e.Kind, e.Domain
			}
		}
		s.PerSignal = append(s.PerSignal, sig)
	}
	sort.SliceStable(s.PerSignal, func(i, j int) bool { return s.PerSignal[i].Path < s.PerSignal[j].Path })
	return s
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	pathStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func renderSummaries(out io.Writer, summaries []traceSummary) {
	rows := [][]string{{"FILE", "TIMESCALE", "SIGNALS", "CHANGES", "END"}}
	for _, s := range summaries {
		rows = append(rows, []string{
			s.Path, s.Timescale, strconv.Itoa(s.Signals), strconv.Itoa(s.Changes), strconv.FormatUint(s.End, 10),
		})
	}
	writeTable(out, rows)

	for _, s := range summaries {
		if len(s.PerSignal) == 0 {
			continue
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, pathStyle.Render(s.Path))
		sigRows := [][]string{{"SIGNAL", "ID", "WIDTH", "CHANGES", "KIND", "DOMAIN"}}
		for _, sig := range s.PerSignal {
			sigRows = append(sigRows, []string{
				sig.Path, sig.ID, strconv.Itoa(sig.Width), strconv.Itoa(sig.Changes),
				orDash(sig.Kind), orDash(sig.Domain),
			})
		}
		writeTable(out, sigRows)
	}
}

// writeTable prints rows as left-aligned columns; the first row is the
// header.
func writeTable(out io.Writer, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = runewidth.FillRight(cell, widths[i])
		}
		line := strings.TrimRight(strings.Join(cells, "  "), " ")
		if r == 0 {
			line = headerStyle.Render(line)
		}
		fmt.Fprintln(out, line)
	}
}

func orDash(s string) string {
	if s == "" {
		return dimStyle.Render("-")
	}
	return s
}
