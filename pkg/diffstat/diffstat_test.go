package diffstat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name   string
		before string
		after  string
		want   Stats
	}{
		{
			name:  "new file counts every line",
			after: "# Title\nbody\n",
			want:  Stats{CharsAdded: 11, LinesAdded: 2},
		},
		{
			name:   "identical content",
			before: "a\nb\n",
			after:  "a\nb\n",
			want:   Stats{},
		},
		{
			name:   "appended line",
			before: "a\nb\n",
			after:  "a\nb\ncc\n",
			want:   Stats{CharsAdded: 2, LinesAdded: 1},
		},
		{
			name:   "replaced line",
			before: "a\nold\nc\n",
			after:  "a\nnewer\nc\n",
			want:   Stats{CharsAdded: 5, LinesAdded: 1, CharsRemoved: 3, LinesRemoved: 1},
		},
		{
			name:   "deleted file",
			before: "x\nyy\n",
			want:   Stats{CharsRemoved: 3, LinesRemoved: 2},
		},
		{
			name:   "whitespace-only edits are ignored",
			before: "func a() {\n\treturn 1\n}\n",
			after:  "func a()  {\n    return 1\n}",
			want:   Stats{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.before, tt.after))
		})
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	before := strings.Repeat("same line\n", 300) + "tail\n"
	after := strings.Repeat("same line\n", 150) + "inserted\n" + strings.Repeat("same line\n", 150) + "tail\n"

	first := Compute(before, after)
	second := Compute(before, after)

	require.Equal(t, first, second)
	assert.Equal(t, 1, first.LinesAdded)
	assert.Equal(t, len("inserted"), first.CharsAdded)
	assert.Zero(t, first.LinesRemoved)
}

func TestAdded(t *testing.T) {
	chars, lines := Added("a\n", "a\nbcd\nef\n")
	assert.Equal(t, 5, chars)
	assert.Equal(t, 2, lines)
}

func TestRaw(t *testing.T) {
	content := strings.Repeat("x", 12) + strings.Repeat("\n"+strings.Repeat("y", 11), 9)
	require.Len(t, content, 120)

	chars, lines := Raw(content)
	assert.Equal(t, 120, chars)
	assert.Equal(t, 10, lines)

	chars, lines = Raw("")
	assert.Zero(t, chars)
	assert.Zero(t, lines)

	chars, lines = Raw("a\nb\n")
	assert.Equal(t, 4, chars)
	assert.Equal(t, 2, lines)
}

func TestRawLinesMatchCompute(t *testing.T) {
	for _, content := range []string{"", "one", "one\n", "one\ntwo", "one\ntwo\n", "\n\n", "a\r\nb\r\n"} {
		_, lines := Raw(content)
		assert.Equal(t, Compute("", content).LinesAdded, lines, "content %q", content)
	}
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, SplitLines(""))
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\r\nb\r\n"))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines("a\n\nb"))
}
