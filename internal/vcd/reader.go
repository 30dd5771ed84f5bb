package vcd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Var is a declared signal.
type Var struct {
	ID    ID
	Type  string
	Width int
	Scope string // dotted scope path
	Name  string
}

// Path returns the dotted path of the variable.
func (v Var) Path() string {
	if v.Scope == "" {
		return v.Name
	}
	return v.Scope + "." + v.Name
}

// Record is a parsed value change.
type Record struct {
	Time  uint64
	ID    ID
	Value string // "0", "1", "x", "z" or "b..." as written
}

// Trace is a parsed value change dump.
type Trace struct {
	Date      string
	Version   string
	Timescale string
	Vars      []Var
	Stamps    []uint64 // timestamp lines in file order
	Records   []Record
}

// Lookup finds a variable by dotted path.
func (t *Trace) Lookup(path string) (Var, bool) {
	for _, v := range t.Vars {
		if v.Path() == path {
			return v, true
		}
	}
	return Var{}, false
}

// RecordsOf returns the changes of one identifier in file order.
func (t *Trace) RecordsOf(id ID) []Record {
	var out []Record
	for _, r := range t.Records {
		if r.ID == id {
			out = append(out, r)
		}
	}
	return out
}

// End returns the last timestamp, zero for an empty trace.
func (t *Trace) End() uint64 {
	if len(t.Stamps) == 0 {
		return 0
	}
	return t.Stamps[len(t.Stamps)-1]
}

// ParseFile parses the trace stored at path.
func ParseFile(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tr, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tr, nil
}

// Parse reads a value change dump.
func Parse(r io.Reader) (*Trace, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)

	tr := &Trace{}
	var (
		scope []string
		now   uint64
		known = map[ID]bool{}
	)
	body := func() (string, error) {
		var words []string
		for sc.Scan() {
			if sc.Text() == "$end" {
				return strings.Join(words, " "), nil
			}
			words = append(words, sc.Text())
		}
		return "", fmt.Errorf("unterminated section")
	}

	for sc.Scan() {
		tok := sc.Text()
		switch {
		case tok == "$date", tok == "$version", tok == "$timescale", tok == "$comment":
			text, err := body()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", tok, err)
			}
			switch tok {
			case "$date":
				tr.Date = text
			case "$version":
				tr.Version = text
			case "$timescale":
				tr.Timescale = text
			}
		case tok == "$scope":
			text, err := body()
			if err != nil {
				return nil, fmt.Errorf("$scope: %w", err)
			}
			fields := strings.Fields(text)
			if len(fields) != 2 {
				return nil, fmt.Errorf("malformed $scope %q", text)
			}
			scope = append(scope, fields[1])
		case tok == "$upscope":
			if _, err := body(); err != nil {
				return nil, fmt.Errorf("$upscope: %w", err)
			}
			if len(scope) == 0 {
				return nil, fmt.Errorf("unbalanced $upscope")
			}
			scope = scope[:len(scope)-1]
		case tok == "$var":
			text, err := body()
			if err != nil {
				return nil, fmt.Errorf("$var: %w", err)
			}
			fields := strings.Fields(text)
			if len(fields) < 4 {
				return nil, fmt.Errorf("malformed $var %q", text)
			}
			width, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("malformed $var width %q", fields[1])
			}
			v := Var{
				ID:    ID(fields[2]),
				Type:  fields[0],
				Width: width,
				Scope: strings.Join(scope, "."),
				Name:  fields[3],
			}
			tr.Vars = append(tr.Vars, v)
			known[v.ID] = true
		case tok == "$enddefinitions":
			if _, err := body(); err != nil {
				return nil, fmt.Errorf("$enddefinitions: %w", err)
			}
		case tok == "$dumpvars", tok == "$dumpall", tok == "$dumpon", tok == "$dumpoff", tok == "$end":
			// block markers around ordinary change records
		case tok[0] == '#':
			t, err := strconv.ParseUint(tok[1:], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed timestamp %q", tok)
			}
			now = t
			tr.Stamps = append(tr.Stamps, t)
		case tok[0] == 'b' || tok[0] == 'B' || tok[0] == 'r' || tok[0] == 'R':
			if !sc.Scan() {
				return nil, fmt.Errorf("value %q without identifier", tok)
			}
			if tok[0] == 'r' || tok[0] == 'R' {
				continue
			}
			id := ID(sc.Text())
			if !known[id] {
				return nil, fmt.Errorf("change for undeclared identifier %q", id)
			}
			tr.Records = append(tr.Records, Record{Time: now, ID: id, Value: "b" + tok[1:]})
		case strings.ContainsRune("01xXzZ", rune(tok[0])):
			id := ID(tok[1:])
			if !known[id] {
				return nil, fmt.Errorf("change for undeclared identifier %q", id)
			}
			tr.Records = append(tr.Records, Record{Time: now, ID: id, Value: strings.ToLower(tok[:1])})
		default:
			return nil, fmt.Errorf("unexpected token %q", tok)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return tr, nil
}
