package parser

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/logsearch-mcp/internal/reader"
)

func feed(lines []string) <-chan reader.Line {
	ch := make(chan reader.Line, len(lines))
	for _, l := range lines {
		ch <- reader.Line{Text: l}
	}
	close(ch)
	return ch
}

func drain(t *testing.T, ch <-chan Result) []Result {
	t.Helper()
	var out []Result
	for r := range ch {
		out = append(out, r)
	}
	return out
}

func TestParseSingleLineMode(t *testing.T) {
	lines := feed([]string{"a\n", "b\n", "c"})
	p := New()
	results := drain(t, p.Parse(context.Background(), "f.log", lines, nil))

	require.Len(t, results, 3)
	require.Equal(t, 1, results[0].Entry.StartLine)
	require.Equal(t, 1, results[0].Entry.EndLine)
	require.Equal(t, "a\n", results[0].Entry.Content)
	require.Equal(t, 3, results[2].Entry.StartLine)
}

func TestParseMultilineAggregatesUntilNextStart(t *testing.T) {
	start := regexp.MustCompile(`^\d{4}-`)
	lines := feed([]string{
		"2024-01-01 first\n",
		"  continuation 1\n",
		"  continuation 2\n",
		"2024-01-02 second\n",
	})
	p := New()
	results := drain(t, p.Parse(context.Background(), "f.log", lines, start))

	require.Len(t, results, 2)
	require.Equal(t, 1, results[0].Entry.StartLine)
	require.Equal(t, 3, results[0].Entry.EndLine)
	require.Contains(t, results[0].Entry.Content, "continuation 2")
	require.Equal(t, 4, results[1].Entry.StartLine)
	require.Equal(t, 4, results[1].Entry.EndLine)
}

func TestParseMultilineLeadingLinesBeforeFirstStartFormOwnEntry(t *testing.T) {
	start := regexp.MustCompile(`^\d{4}-`)
	lines := feed([]string{
		"preamble line 1\n",
		"preamble line 2\n",
		"2024-01-01 real entry\n",
	})
	p := New()
	results := drain(t, p.Parse(context.Background(), "f.log", lines, start))

	require.Len(t, results, 2)
	require.Equal(t, 1, results[0].Entry.StartLine)
	require.Equal(t, 2, results[0].Entry.EndLine)
	require.Equal(t, 3, results[1].Entry.StartLine)
}

func TestParsePropagatesReadError(t *testing.T) {
	ch := make(chan reader.Line, 1)
	ch <- reader.Line{Err: context.DeadlineExceeded}
	close(ch)

	p := New()
	results := drain(t, p.Parse(context.Background(), "f.log", ch, nil))
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
}
