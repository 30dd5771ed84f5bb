package main

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"wavetrace/internal/config"
	"wavetrace/internal/prof"
	"wavetrace/internal/ui"
	"wavetrace/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <config.toml>",
	Short: "Simulate a configured design and write its waveform trace",
	Long:  `Build the design described by a TOML file, run it and record the requested signals as a value change dump`,
	Args:  cobra.ExactArgs(1),
	RunE:  runTrace,
}

func init() {
	runCmd.Flags().StringP("output", "o", "", "trace output path, - for stdout (overrides [trace].output)")
	runCmd.Flags().Int64("until", -1, "simulation end time (overrides [run].until)")
	runCmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
	runCmd.Flags().String("cpu-profile", "", "write a CPU profile of the run")
	runCmd.Flags().String("mem-profile", "", "write a heap profile after the run")
	runCmd.Flags().String("runtime-trace", "", "write a Go runtime execution trace of the run")
}

func runTrace(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	if output, err := cmd.Flags().GetString("output"); err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	} else if output != "" {
		cfg.Trace.Output = output
	}
	if until, err := cmd.Flags().GetInt64("until"); err != nil {
		return fmt.Errorf("failed to get until flag: %w", err)
	} else if until >= 0 {
		cfg.Run.Until = until
	}
	uiFlag, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	mode, err := readUIMode(uiFlag)
	if err != nil {
		return err
	}
	timings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}

	s, err := newSession(cfg, log, version.Header())
	if err != nil {
		return err
	}
	profiler, err := startProfiling(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if perr := profiler.Stop(); perr != nil {
			log.Warn("profiling", "err", perr)
		}
	}()

	var res runResult
	if shouldUseTUI(mode, cfg.Trace.Output) {
		res, err = runWithUI(cmd.Context(), s)
	} else {
		res, err = s.run(cmd.Context())
	}
	if err != nil {
		return err
	}

	out := statusOut(cmd)
	if cfg.Trace.Output != "-" {
		printRunResult(out, res)
	}
	if timings {
		if err := s.timer.WriteSummary(cmd.ErrOrStderr()); err != nil {
			return err
		}
	}
	return nil
}

func startProfiling(cmd *cobra.Command) (*prof.Profiler, error) {
	var opts prof.Options
	for flag, dst := range map[string]*string{
		"cpu-profile":   &opts.CPU,
		"mem-profile":   &opts.Mem,
		"runtime-trace": &opts.Trace,
	} {
		v, err := cmd.Flags().GetString(flag)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", flag, err)
		}
		*dst = v
	}
	return prof.Start(opts)
}

type runOutcome struct {
	result runResult
	err    error
}

// runWithUI runs s in the background while the progress view renders its
// events. Quitting the view cancels the run.
func runWithUI(ctx context.Context, s *session) (runResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan ui.Event, 256)
	outcomeCh := make(chan runOutcome, 1)
	s.events = events

	go func() {
		res, err := s.run(ctx)
		outcomeCh <- runOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(s.cfg.Trace.Output, s.domains(), events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	cancel()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}

func printRunResult(out io.Writer, res runResult) {
	fmt.Fprintf(out, "traced %d signals over %d edges, end time %d\n", res.Signals, res.Edges, res.End)
	for _, seg := range res.Segments {
		fmt.Fprintf(out, "  wrote %s\n", seg)
	}
}
