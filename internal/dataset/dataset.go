// Package dataset reads the input values and writes the sorted output, the
// timing report and worker proof files. All files are plain text with one
// value per line.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrParse is returned when a line is not a floating-point number.
var ErrParse = errors.New("invalid value")

// TimeLayout is used for the start and end lines of the timing report.
const TimeLayout = "2006-01-02 15:04:05"

// ProofLayout is the timestamp embedded in proof file names.
const ProofLayout = "20060102_150405"

// Load reads one value per line from path. Blank lines are skipped.
func Load(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	values, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return values, nil
}

// Read parses one value per line from r. NaN is rejected since it has no
// place in a sorted sequence and cannot be sent to a worker.
func Read(r io.Reader) ([]float64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var values []float64
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(v) {
			return nil, fmt.Errorf("%w on line %d: %q", ErrParse, line, text)
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// FormatValue renders v in the shortest form that reads back exactly, the
// way the output files have always been written: positional notation for
// 1e-4 <= |v| < 1e16 with integral values keeping a trailing ".0",
// exponent notation outside that range, and "inf"/"-inf"/"nan".
func FormatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// WriteSorted writes values joined by newlines, without a trailing newline.
func WriteSorted(path string, values []float64) error {
	lines := make([]string, len(values))
	for i, v := range values {
		lines[i] = FormatValue(v)
	}
	return writeFile(path, strings.Join(lines, "\n"))
}

// WriteValues writes values one per line, each followed by a newline.
func WriteValues(path string, values []float64) error {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(FormatValue(v))
		b.WriteByte('\n')
	}
	return writeFile(path, b.String())
}

// Timing is the content of the timing report.
type Timing struct {
	Start    time.Time
	End      time.Time
	Elements int
	Workers  int
}

// Elapsed is End - Start.
func (t Timing) Elapsed() time.Duration {
	return t.End.Sub(t.Start)
}

// WriteTiming writes the timing report to path.
func WriteTiming(path string, t Timing) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Total elements: %d\n", t.Elements)
	fmt.Fprintf(&b, "Number of workers: %d\n", t.Workers)
	fmt.Fprintf(&b, "Total sorting time: %.2f seconds\n", t.Elapsed().Seconds())
	fmt.Fprintf(&b, "Start time: %s\n", t.Start.Format(TimeLayout))
	fmt.Fprintf(&b, "End time: %s\n", t.End.Format(TimeLayout))
	return writeFile(path, b.String())
}

// ProofPath names a worker proof file:
// dir/{received|sorted}_chunk_{host}_{YYYYmmdd_HHMMSS}.txt
func ProofPath(dir string, sorted bool, host string, at time.Time) string {
	prefix := "received"
	if sorted {
		prefix = "sorted"
	}
	name := fmt.Sprintf("%s_chunk_%s_%s.txt", prefix, host, at.Format(ProofLayout))
	return filepath.Join(dir, name)
}

// WriteProof saves a chunk as a proof file and returns its path.
func WriteProof(dir string, sorted bool, host string, at time.Time, values []float64) (string, error) {
	path := ProofPath(dir, sorted, host, at)
	if err := WriteValues(path, values); err != nil {
		return "", err
	}
	return path, nil
}

func writeFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
