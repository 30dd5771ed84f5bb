// Package vcd writes and reads value change dump trace files.
//
// # Writing
//
// A Writer is opened once per output segment and keeps its identifier and
// timestamp state across segments:
//
//	w := vcd.NewWriter(vcd.Config{Timescale: "1ns", Quantum: 1})
//	if err := w.OpenPath("wave.vcd"); err != nil { ... }
//	w.BeginScope("Top")
//	id, _ := w.DeclareSignal("data", 8)
//	w.EndScope()
//	w.EndDefinitions()
//	w.Emit(10, id, []byte("11111111"), false)
//	w.Close()
//
// # Identifiers
//
// Identifiers are four printable characters ('!' through '~') issued like an
// odometer, least significant character first. Running out of identifiers is
// reported as ErrIDSpaceExhausted.
//
// # Time
//
// A timestamp line is written whenever the source time of an emitted change
// differs from the previous one. Output time never decreases: a source time
// closer than Quantum to the previous output time is bumped to
// previous+Quantum.
//
// # Reading
//
// Parse reads a trace back into declarations and an ordered change list. It
// understands the subset of the format Writer produces plus 'z' values,
// $comment blocks and real values, which it skips.
package vcd
