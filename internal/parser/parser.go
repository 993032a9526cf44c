// Package parser assembles a decoded line stream into log entries, either
// one entry per line or multi-line aggregates driven by a start-of-record
// pattern.
package parser

import (
	"context"
	"regexp"
	"strings"

	"github.com/standardbeagle/logsearch-mcp/internal/model"
	"github.com/standardbeagle/logsearch-mcp/internal/reader"
)

// Parser is a stateless value type; the state machine for multi-line
// aggregation lives entirely in the per-call local variables of Parse, so
// the same Parser handle is safe to share across concurrent file tasks.
type Parser struct{}

// New returns a Parser handle.
func New() *Parser {
	return &Parser{}
}

// Parse consumes lines and emits LogEntry values on the returned channel.
// When startPattern is nil, each line becomes its own single-line entry.
// When non-nil, lines are aggregated using the multi-line state machine:
// a line matching startPattern flushes the current buffer and begins a new
// entry; any other line extends the current entry, and the very first
// lines of a file (before any start-pattern match) still form an entry of
// their own so no input is dropped.
func (p *Parser) Parse(ctx context.Context, filePath string, lines <-chan reader.Line, startPattern *regexp.Regexp) <-chan Result {
	out := make(chan Result, 16)
	if startPattern == nil {
		go p.parseSingleLine(ctx, filePath, lines, out)
	} else {
		go p.parseMultiline(ctx, filePath, lines, startPattern, out)
	}
	return out
}

// Result is either a parsed LogEntry or a terminal error.
type Result struct {
	Entry model.LogEntry
	Err   error
}

func (p *Parser) parseSingleLine(ctx context.Context, filePath string, lines <-chan reader.Line, out chan<- Result) {
	defer close(out)
	lineNo := 0
	for l := range lines {
		if l.Err != nil {
			send(ctx, out, Result{Err: l.Err})
			return
		}
		lineNo++
		send(ctx, out, Result{Entry: model.LogEntry{
			FilePath:  filePath,
			StartLine: lineNo,
			EndLine:   lineNo,
			Content:   l.Text,
		}})
	}
}

func (p *Parser) parseMultiline(ctx context.Context, filePath string, lines <-chan reader.Line, startPattern *regexp.Regexp, out chan<- Result) {
	defer close(out)

	lineNo := 0
	currentStart := 1
	currentEnd := 0
	var buf strings.Builder
	bufNonEmpty := false

	flush := func() {
		if !bufNonEmpty {
			return
		}
		send(ctx, out, Result{Entry: model.LogEntry{
			FilePath:  filePath,
			StartLine: currentStart,
			EndLine:   currentEnd,
			Content:   buf.String(),
		}})
		buf.Reset()
		bufNonEmpty = false
	}

	for l := range lines {
		if l.Err != nil {
			send(ctx, out, Result{Err: l.Err})
			return
		}
		lineNo++
		isStart := startPattern.MatchString(l.Text)

		if isStart {
			flush()
			currentStart = lineNo
			currentEnd = lineNo
			buf.WriteString(l.Text)
			bufNonEmpty = true
			continue
		}

		if !bufNonEmpty {
			currentStart = lineNo
		}
		currentEnd = lineNo
		buf.WriteString(l.Text)
		bufNonEmpty = true
	}

	flush()
}

func send(ctx context.Context, out chan<- Result, r Result) {
	select {
	case out <- r:
	case <-ctx.Done():
	}
}
