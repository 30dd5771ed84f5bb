// Package config loads the TOML run description: trace settings, dump
// requests and the design to simulate.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInvalid marks a configuration that decoded but does not validate.
var ErrInvalid = errors.New("invalid configuration")

// File is the decoded configuration file.
type File struct {
	Trace      Trace       `toml:"trace"`
	Run        Run         `toml:"run"`
	Dumps      []Dump      `toml:"dump"`
	Domains    []Domain    `toml:"domain"`
	Components []Component `toml:"component"`
	Queues     []Queue     `toml:"queue"`

	path string
}

// Trace configures the trace output.
type Trace struct {
	Output        string `toml:"output"`
	Manifest      string `toml:"manifest"`
	Timescale     string `toml:"timescale"`
	Date          string `toml:"date"`
	Quantum       int64  `toml:"quantum"`
	SegmentCycles int64  `toml:"segment_cycles"`
}

// Run bounds the simulation.
type Run struct {
	Until int64 `toml:"until"`
}

// Dump is one dump request. Component is a dotted path pattern.
type Dump struct {
	Component string `toml:"component"`
	Signals   string `toml:"signals"`
	Depth     int64  `toml:"depth"`
}

// Domain declares a clock domain.
type Domain struct {
	Name   string `toml:"name"`
	Period int64  `toml:"period"`
	Offset int64  `toml:"offset"`
}

// Component declares one component by dotted path. Missing ancestors are
// created without a domain of their own.
type Component struct {
	Path   string `toml:"path"`
	Domain string `toml:"domain"`
	Ports  []Port `toml:"port"`
}

// Port declares a value port and the behaviour driving it.
type Port struct {
	Name     string `toml:"name"`
	Kind     string `toml:"kind"`
	Width    int64  `toml:"width"`
	Behavior string `toml:"behavior"`
	Value    int64  `toml:"value"`
	Every    int64  `toml:"every"`
	Order    string `toml:"order"`
	Valid    bool   `toml:"valid"`
}

// Queue declares a queue and the ports at both ends.
type Queue struct {
	Name      string `toml:"name"`
	Width     int64  `toml:"width"`
	Depth     int64  `toml:"depth"`
	Delayed   bool   `toml:"delayed"`
	NoFlow    bool   `toml:"noflow"`
	Producer  string `toml:"producer"`
	Consumer  string `toml:"consumer"`
	PushEvery int64  `toml:"push_every"`
	PopEvery  int64  `toml:"pop_every"`
}

// Port kinds accepted in [[component.port]].
var portKinds = map[string]bool{
	"in": true, "out": true, "reg": true, "clock": true, "reset": true, "free": true,
}

// Behaviours accepted in [[component.port]].
var behaviors = map[string]bool{
	"": true, "counter": true, "toggle": true, "const": true, "pulse": true,
}

// Load decodes and validates the configuration at path.
func Load(path string) (*File, error) {
	var f File
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	f.path = path
	if err := f.finish(meta); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// Parse decodes and validates configuration text.
func Parse(text string) (*File, error) {
	var f File
	meta, err := toml.Decode(text, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if err := f.finish(meta); err != nil {
		return nil, err
	}
	return &f, nil
}

// Path returns the file the configuration was loaded from, if any.
func (f *File) Path() string { return f.path }

func (f *File) finish(meta toml.MetaData) error {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	if !meta.IsDefined("trace", "output") || strings.TrimSpace(f.Trace.Output) == "" {
		f.Trace.Output = "wave.vcd"
	}
	if !meta.IsDefined("trace", "quantum") {
		f.Trace.Quantum = 1
	}
	if !meta.IsDefined("trace", "timescale") {
		f.Trace.Timescale = "1ns"
	}
	if !meta.IsDefined("run", "until") {
		f.Run.Until = 100
	}
	for i := range f.Dumps {
		if f.Dumps[i].Signals == "" {
			f.Dumps[i].Signals = "*"
		}
	}
	return f.validate()
}

func (f *File) validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if f.Trace.Quantum < 0 {
		bad("[trace].quantum must not be negative")
	}
	if f.Trace.SegmentCycles < 0 {
		bad("[trace].segment_cycles must not be negative")
	}
	if f.Run.Until < 0 {
		bad("[run].until must not be negative")
	}

	domains := map[string]bool{}
	for i, d := range f.Domains {
		switch {
		case d.Name == "":
			bad("[[domain]] #%d: missing name", i+1)
		case domains[d.Name]:
			bad("[[domain]] %q declared twice", d.Name)
		}
		domains[d.Name] = true
		if d.Period <= 0 {
			bad("[[domain]] %q: period must be positive", d.Name)
		}
		if d.Offset < 0 {
			bad("[[domain]] %q: offset must not be negative", d.Name)
		}
	}

	paths := map[string]bool{}
	for _, c := range f.Components {
		if strings.TrimSpace(c.Path) == "" || strings.Contains(c.Path, "..") {
			bad("[[component]] path %q is malformed", c.Path)
			continue
		}
		if paths[c.Path] {
			bad("[[component]] %q declared twice", c.Path)
		}
		paths[c.Path] = true
		if c.Domain != "" && !domains[c.Domain] {
			bad("[[component]] %q: unknown domain %q", c.Path, c.Domain)
		}
		names := map[string]bool{}
		for _, p := range c.Ports {
			where := c.Path + "." + p.Name
			if p.Name == "" {
				bad("[[component.port]] of %q: missing name", c.Path)
			}
			if names[p.Name] {
				bad("port %s declared twice", where)
			}
			names[p.Name] = true
			if !portKinds[p.Kind] {
				bad("port %s: unknown kind %q", where, p.Kind)
			}
			if p.Width <= 0 && p.Kind != "clock" {
				bad("port %s: width must be positive", where)
			}
			if !behaviors[p.Behavior] {
				bad("port %s: unknown behavior %q", where, p.Behavior)
			}
			if p.Order != "" && p.Order != "native" && p.Order != "byteswap" {
				bad("port %s: unknown order %q", where, p.Order)
			}
		}
	}

	for _, q := range f.Queues {
		if q.Name == "" {
			bad("[[queue]]: missing name")
		}
		if q.Width <= 0 {
			bad("queue %q: width must be positive", q.Name)
		}
		if q.Depth < 0 {
			bad("queue %q: depth must not be negative", q.Name)
		}
		if q.Producer == "" && q.Consumer == "" {
			bad("queue %q: needs a producer or a consumer port", q.Name)
		}
		if q.PushEvery < 0 || q.PopEvery < 0 {
			bad("queue %q: rates must not be negative", q.Name)
		}
	}

	for _, d := range f.Dumps {
		if d.Depth < 0 {
			bad("[[dump]] %q: depth must not be negative", d.Component)
		}
	}
	return errors.Join(errs...)
}
