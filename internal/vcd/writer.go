package vcd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
)

// ErrClosed is returned when writing to a writer with no open output.
var ErrClosed = errors.New("vcd: writer is not open")

// Config holds the header fields and the time policy of a Writer.
type Config struct {
	Date      string // $date body; empty omits the section
	Version   string // $version body; empty omits the section
	Timescale string // $timescale body, "1ns" when empty
	Quantum   uint64 // minimum distance between two output timestamps
}

// Change is one value change record.
type Change struct {
	ID        ID
	Bits      []byte // '0'/'1' characters, most significant bit first
	Undefined bool
}

// Writer serializes a value change dump. All methods are goroutine-safe;
// the lock is held only for the duration of one write.
type Writer struct {
	mu     sync.Mutex
	cfg    Config
	out    *bufio.Writer
	closer io.Closer
	ids    IDAllocator
	depth  int
	defs   bool // inside the declaration section
	err    error

	started     bool // a timestamp was written in this session
	needStamp   bool // the current segment has no timestamp yet
	lastEmitted uint64
	lastSource  uint64
}

// NewWriter creates a writer with no output attached.
func NewWriter(cfg Config) *Writer {
	if cfg.Timescale == "" {
		cfg.Timescale = "1ns"
	}
	return &Writer{cfg: cfg}
}

// Open attaches out and writes the header. Identifier and time state from
// earlier segments is kept.
func (w *Writer) Open(out io.Writer) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.out != nil {
		return fmt.Errorf("vcd: already open")
	}
	w.out = bufio.NewWriter(out)
	w.closer = nil
	if c, ok := out.(io.Closer); ok && out != os.Stdout && out != os.Stderr {
		w.closer = c
	}
	w.err = nil
	w.depth = 0
	w.defs = true
	w.needStamp = true

	if w.cfg.Date != "" {
		w.section("$date", w.cfg.Date)
	}
	if w.cfg.Version != "" {
		w.section("$version", w.cfg.Version)
	}
	w.section("$timescale", w.cfg.Timescale)
	return w.err
}

// OpenPath creates path and opens it. "-" writes to stdout.
func (w *Writer) OpenPath(path string) error {
	if path == "" || path == "-" {
		return w.Open(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to open trace output: %w", err)
	}
	if err := w.Open(f); err != nil {
		_ = f.Close()
		return err
	}
	return nil
}

func (w *Writer) section(keyword, body string) {
	w.writeString(keyword)
	w.writeString("\n\t")
	w.writeString(body)
	w.writeString("\n$end\n")
}

func (w *Writer) writeString(s string) {
	if w.err != nil {
		return
	}
	if _, err := w.out.WriteString(s); err != nil {
		w.err = fmt.Errorf("vcd: write: %w", err)
	}
}

func (w *Writer) writeByte(b byte) {
	if w.err != nil {
		return
	}
	if err := w.out.WriteByte(b); err != nil {
		w.err = fmt.Errorf("vcd: write: %w", err)
	}
}

// usable reports the sticky error or ErrClosed. Callers hold mu.
func (w *Writer) usable() error {
	if w.out == nil {
		return ErrClosed
	}
	return w.err
}

// BeginScope opens a nested module scope.
func (w *Writer) BeginScope(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.usable(); err != nil {
		return err
	}
	if !w.defs {
		return fmt.Errorf("vcd: scope %q after $enddefinitions", name)
	}
	w.depth++
	w.writeString("$scope module ")
	w.writeString(name)
	w.writeString(" $end\n")
	return w.err
}

// EndScope closes the innermost scope.
func (w *Writer) EndScope() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.usable(); err != nil {
		return err
	}
	if w.depth == 0 {
		return fmt.Errorf("vcd: unbalanced $upscope")
	}
	w.depth--
	w.writeString("$upscope $end\n")
	return w.err
}

// DeclareSignal issues a new identifier and declares name under it.
func (w *Writer) DeclareSignal(name string, width int) (ID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.usable(); err != nil {
		return "", err
	}
	id, err := w.ids.Next()
	if err != nil {
		return "", err
	}
	w.declare(id, name, width)
	return id, w.err
}

// Redeclare declares name under an identifier issued in an earlier segment.
func (w *Writer) Redeclare(id ID, name string, width int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.usable(); err != nil {
		return err
	}
	w.declare(id, name, width)
	return w.err
}

func (w *Writer) declare(id ID, name string, width int) {
	w.writeString("$var wire ")
	w.writeString(strconv.Itoa(width))
	w.writeByte(' ')
	w.writeString(string(id))
	w.writeByte(' ')
	w.writeString(name)
	w.writeString(" $end\n")
}

// EndDefinitions closes any open scope and ends the declaration section.
func (w *Writer) EndDefinitions() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.usable(); err != nil {
		return err
	}
	for ; w.depth > 0; w.depth-- {
		w.writeString("$upscope $end\n")
	}
	w.defs = false
	w.writeString("$enddefinitions $end\n")
	return w.err
}

// Emit writes one value change observed at source time now.
func (w *Writer) Emit(now uint64, id ID, bits []byte, undefined bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.usable(); err != nil {
		return err
	}
	w.stamp(now)
	w.record(Change{ID: id, Bits: bits, Undefined: undefined})
	return w.err
}

// DumpVars writes a $dumpvars block holding the full current state.
func (w *Writer) DumpVars(now uint64, changes []Change) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.usable(); err != nil {
		return err
	}
	w.stamp(now)
	w.writeString("$dumpvars\n")
	for _, c := range changes {
		w.record(c)
	}
	w.writeString("$end\n")
	return w.err
}

// stamp writes a timestamp line when the source time moved. Callers hold mu.
func (w *Writer) stamp(now uint64) {
	var t uint64
	switch {
	case !w.started:
		t = now
	case now == w.lastSource:
		if !w.needStamp {
			return
		}
		t = w.lastEmitted
	case w.lastEmitted+w.cfg.Quantum > now:
		t = w.lastEmitted + w.cfg.Quantum
	default:
		t = now
	}
	w.writeByte('#')
	w.writeString(strconv.FormatUint(t, 10))
	w.writeByte('\n')
	w.started = true
	w.needStamp = false
	w.lastEmitted = t
	w.lastSource = now
}

func (w *Writer) record(c Change) {
	w.writeString(FormatValue(c.Bits, c.Undefined))
	if len(c.Bits) > 1 {
		w.writeByte(' ')
	}
	w.writeString(string(c.ID))
	w.writeByte('\n')
}

// LastTime returns the last timestamp written.
func (w *Writer) LastTime() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastEmitted
}

// Issued returns how many identifiers were issued so far.
func (w *Writer) Issued() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ids.Issued()
}

// Flush pushes buffered output to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.usable(); err != nil {
		return err
	}
	if err := w.out.Flush(); err != nil {
		w.err = fmt.Errorf("vcd: flush: %w", err)
	}
	return w.err
}

// Close flushes and detaches the output, closing it when it is a file.
// Closing a writer that is not open is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return nil
	}
	err := w.err
	if ferr := w.out.Flush(); ferr != nil && err == nil {
		err = fmt.Errorf("vcd: flush: %w", ferr)
	}
	if w.closer != nil {
		if cerr := w.closer.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("vcd: close: %w", cerr)
		}
	}
	w.out = nil
	w.closer = nil
	return err
}
