// Package diffstat measures line-oriented changes between two versions of a
// text file. Lines are matched with whitespace ignored; character counts
// exclude line terminators.
package diffstat

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Stats summarizes the additions and removals needed to turn one text into
// another.
type Stats struct {
	CharsAdded   int `json:"charsAdded"`
	LinesAdded   int `json:"linesAdded"`
	CharsRemoved int `json:"charsRemoved"`
	LinesRemoved int `json:"linesRemoved"`
}

// Compute returns the line and character deltas between before and after.
// It is a pure function of its inputs.
func Compute(before, after string) Stats {
	a := SplitLines(before)
	b := SplitLines(after)

	matcher := difflib.NewMatcherWithJunk(normalize(a), normalize(b), false, nil)

	var stats Stats
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'r':
			stats.addRemoved(a[op.I1:op.I2])
			stats.addAdded(b[op.J1:op.J2])
		case 'd':
			stats.addRemoved(a[op.I1:op.I2])
		case 'i':
			stats.addAdded(b[op.J1:op.J2])
		}
	}
	return stats
}

// Added reports the added side only. It is the figure shown to users as
// "what accepting this file gains".
func Added(before, after string) (chars, lines int) {
	s := Compute(before, after)
	return s.CharsAdded, s.LinesAdded
}

// Raw counts a text as if every line were new: its total length, and lines
// as SplitLines counts them so it agrees with Compute against empty text.
func Raw(content string) (chars, lines int) {
	return len(content), len(SplitLines(content))
}

func (s *Stats) addAdded(lines []string) {
	s.LinesAdded += len(lines)
	for _, l := range lines {
		s.CharsAdded += len(l)
	}
}

func (s *Stats) addRemoved(lines []string) {
	s.LinesRemoved += len(lines)
	for _, l := range lines {
		s.CharsRemoved += len(l)
	}
}

// SplitLines splits text into lines without terminators. A trailing newline
// does not produce an empty final line, and empty text has no lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func normalize(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.Join(strings.Fields(l), " ")
	}
	return out
}
