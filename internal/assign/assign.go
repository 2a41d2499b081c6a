// Package assign resolves detected labels to bins. Assignment happens once
// per run and may wait on a human indefinitely.
package assign

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/platesort/internal/plate"
)

// ErrCancelled is returned when the operator declines to assign bins.
var ErrCancelled = errors.New("bin assignment cancelled")

// Assigner maps labels to bin classes. bins maps class to edge position and
// is shown for reference.
type Assigner interface {
	Assign(ctx context.Context, labels []string, bins map[int]float64) (plate.Mapping, error)
}

func sortedClasses(bins map[int]float64) []int {
	classes := make([]int, 0, len(bins))
	for c := range bins {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes
}

// Prompt asks on a terminal. Labels are asked in sorted order; an empty
// answer picks the first bin, "q" cancels.
type Prompt struct {
	in  io.Reader
	out io.Writer
}

// NewPrompt returns a prompt over in/out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out}
}

type answer struct {
	m   plate.Mapping
	err error
}

// Assign blocks until every label is answered, the input ends, or ctx is
// cancelled. There is no timeout. A read from in cannot be interrupted, so
// after cancellation the reading goroutine stays blocked until the next line
// arrives or in is closed; callers that cancel should close in.
func (p *Prompt) Assign(ctx context.Context, labels []string, bins map[int]float64) (plate.Mapping, error) {
	if len(bins) == 0 {
		return nil, errors.New("no bins to assign")
	}
	done := make(chan answer, 1)
	go func() {
		m, err := p.ask(labels, bins)
		done <- answer{m, err}
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case a := <-done:
		return a.m, a.err
	}
}

func (p *Prompt) ask(labels []string, bins map[int]float64) (plate.Mapping, error) {
	classes := sortedClasses(bins)
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)

	fmt.Fprintln(p.out, "Bins:")
	for _, c := range classes {
		fmt.Fprintf(p.out, "  bin %d  edge y=%.0fmm\n", c, bins[c])
	}
	fmt.Fprintln(p.out, "Assign a bin to each detected class (enter = first bin, q = cancel).")

	sc := bufio.NewScanner(p.in)
	m := make(plate.Mapping, len(sorted))
	for _, label := range sorted {
		for {
			fmt.Fprintf(p.out, "%s [%d]: ", label, classes[0])
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return nil, fmt.Errorf("read answer: %w", err)
				}
				return nil, fmt.Errorf("%w: input closed", ErrCancelled)
			}
			text := strings.TrimSpace(sc.Text())
			if strings.EqualFold(text, "q") {
				return nil, ErrCancelled
			}
			if text == "" {
				m[label] = classes[0]
				break
			}
			n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(text), "bin "))
			if _, ok := bins[n]; err != nil || !ok {
				fmt.Fprintf(p.out, "  unknown bin %q\n", text)
				continue
			}
			m[label] = n
			break
		}
	}
	return m, nil
}

// Static serves a fixed mapping. Labels it does not list stay unmapped and
// are dropped during conversion.
type Static struct {
	mapping plate.Mapping
}

// NewStatic wraps m. Bin classes are checked at Assign time.
func NewStatic(m plate.Mapping) *Static {
	return &Static{mapping: m}
}

// LoadStatic reads a JSON object of label -> bin class.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load mapping: %w", err)
	}
	var m plate.Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", path, err)
	}
	return NewStatic(m), nil
}

// Assign returns the subset of the mapping covering labels.
func (s *Static) Assign(ctx context.Context, labels []string, bins map[int]float64) (plate.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	out := make(plate.Mapping, len(labels))
	for _, label := range labels {
		class, ok := s.mapping[label]
		if !ok {
			continue
		}
		if _, ok := bins[class]; !ok {
			return nil, fmt.Errorf("mapping for %q names unknown bin %d", label, class)
		}
		out[label] = class
	}
	return out, nil
}

var (
	_ Assigner = (*Prompt)(nil)
	_ Assigner = (*Static)(nil)
)
