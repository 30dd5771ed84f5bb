package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"wavetrace/internal/config"
	"wavetrace/internal/design"
	"wavetrace/internal/observ"
	"wavetrace/internal/ui"
	"wavetrace/internal/wave"
)

// session is one traced run of a configured design.
type session struct {
	cfg    *config.File
	design *design.Design
	engine *wave.Engine
	timer  *observ.Timer
	log    *slog.Logger

	until   uint64
	span    uint64 // time between segment rotations, 0 for a single file
	version string

	events chan<- ui.Event // nil without a progress view
}

// runResult summarises a finished session.
type runResult struct {
	Segments []string
	Signals  int
	Edges    uint64
	End      uint64
}

func newSession(cfg *config.File, log *slog.Logger, versionHeader string) (*session, error) {
	until, err := safecast.Conv[uint64](cfg.Run.Until)
	if err != nil {
		return nil, fmt.Errorf("[run].until: %w", err)
	}
	d, err := design.Build(cfg, log)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, design: d, timer: observ.NewTimer(), log: log, until: until, version: versionHeader}
	if cfg.Trace.SegmentCycles > 0 {
		cycles, err := safecast.Conv[uint64](cfg.Trace.SegmentCycles)
		if err != nil {
			return nil, fmt.Errorf("[trace].segment_cycles: %w", err)
		}
		if cfg.Trace.Output == "-" {
			log.Warn("segment rotation disabled for stdout output")
		} else {
			s.span = cycles * d.Kernel.Domains()[0].Period
		}
	}
	return s, nil
}

// domains returns the progress rows of the design.
func (s *session) domains() []ui.Domain {
	var out []ui.Domain
	for _, d := range s.design.Kernel.Domains() {
		out = append(out, ui.Domain{Name: d.Name, Total: edgesUntil(d.Offset, d.Period, s.until)})
	}
	return out
}

func edgesUntil(offset, period, until uint64) uint64 {
	if offset > until {
		return 0
	}
	return (until-offset)/period + 1
}

// run drives the tracing lifecycle around the simulation.
func (s *session) run(ctx context.Context) (res runResult, err error) {
	k := s.design.Kernel
	quantum, err := safecast.Conv[uint64](s.cfg.Trace.Quantum)
	if err != nil {
		return res, fmt.Errorf("[trace].quantum: %w", err)
	}
	s.engine = wave.New(k, wave.Config{
		Output:    s.cfg.Trace.Output,
		Manifest:  s.cfg.Trace.Manifest,
		Timescale: s.cfg.Trace.Timescale,
		Date:      s.cfg.Trace.Date,
		Version:   s.version,
		Quantum:   quantum,
		Logger:    s.log,
	})

	err = s.timer.Track("declare", func() error {
		for _, d := range s.cfg.Dumps {
			depth, err := safecast.Conv[int](d.Depth)
			if err != nil {
				return fmt.Errorf("[[dump]] %s: depth: %w", d.Component, err)
			}
			if err := s.engine.DeclarePattern(d.Component, d.Signals, depth); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	if err := s.timer.Track("elaborate", k.Elaborate); err != nil {
		return res, err
	}
	if err := s.timer.Track("initialize", s.engine.Initialize); err != nil {
		return res, err
	}
	defer func() {
		cerr := s.timer.Track("cleanup", s.engine.Cleanup)
		err = errors.Join(err, cerr)
	}()
	if err := s.timer.Track("resolve", s.engine.Resolve); err != nil {
		return res, err
	}
	res.Segments = append(res.Segments, s.cfg.Trace.Output)
	_ = s.engine.Catalog().Apply(func(n *wave.Node) error {
		res.Signals += len(n.Signals()) + len(n.Tracers())
		return nil
	})

	err = s.timer.Track("run", func() error { return s.simulate(ctx, &res) })
	res.Edges = s.design.Edges()
	res.End = k.Now()
	if err != nil {
		s.publish(ctx, ui.Event{Time: k.Now(), Err: err})
	}
	return res, err
}

// simulate steps the kernel to the configured end, rotating segments on
// their boundaries and publishing progress in between.
func (s *session) simulate(ctx context.Context, res *runResult) error {
	k := s.design.Kernel
	step := max(s.until/100, 1)
	boundary := s.span
	var t uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := min(t+step, s.until)
		if s.span > 0 {
			target = min(target, boundary)
		}
		if err := k.Run(target); err != nil {
			return err
		}
		t = target
		s.progress(ctx)
		if t >= s.until {
			return nil
		}
		if s.span > 0 && t == boundary {
			path := segmentPath(s.cfg.Trace.Output, len(res.Segments))
			if err := s.engine.Archive(path); err != nil {
				return fmt.Errorf("rotate to %s: %w", path, err)
			}
			res.Segments = append(res.Segments, path)
			s.publish(ctx, ui.Event{Time: k.Now(), Segment: filepath.Base(path)})
			boundary += s.span
		}
	}
}

func (s *session) progress(ctx context.Context) {
	for _, d := range s.design.Kernel.Domains() {
		s.publish(ctx, ui.Event{Domain: d.Name, Edges: d.Edges(), Time: s.design.Kernel.Now()})
	}
}

func (s *session) publish(ctx context.Context, ev ui.Event) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// segmentPath names the n-th rotated segment of base: wave.vcd becomes
// wave.1.vcd.
func segmentPath(base string, n int) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return stem + "." + strconv.Itoa(n) + ext
}
