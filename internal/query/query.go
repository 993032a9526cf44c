// Package query compiles and evaluates the compound Boolean text query and
// time filter against a single log entry's content.
package query

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	logerrors "github.com/standardbeagle/logsearch-mcp/internal/errors"
	"github.com/standardbeagle/logsearch-mcp/internal/model"
)

// Evaluator compiles and applies queries. It keeps a small compiled-regex
// cache keyed by a hash of pattern+flags, since the same SearchQuery is
// evaluated once per matching entry within a request and regex compilation
// is comparatively expensive.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[uint64]*regexp.Regexp
}

// NewEvaluator returns a ready-to-use Evaluator. A zero-value Evaluator also
// works; NewEvaluator just preallocates the cache map.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[uint64]*regexp.Regexp)}
}

func cacheKey(pattern string, caseSensitive bool) uint64 {
	h := xxhash.New()
	h.WriteString(pattern)
	if caseSensitive {
		h.WriteString("|cs")
	} else {
		h.WriteString("|ci")
	}
	return h.Sum64()
}

func (e *Evaluator) compile(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	key := cacheKey(pattern, caseSensitive)

	e.mu.RLock()
	if e.cache != nil {
		if re, ok := e.cache[key]; ok {
			e.mu.RUnlock()
			return re, nil
		}
	}
	e.mu.RUnlock()

	effective := pattern
	if !caseSensitive {
		effective = "(?i)" + pattern
	}
	re, err := regexp.Compile(effective)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.cache == nil {
		e.cache = make(map[uint64]*regexp.Regexp)
	}
	e.cache[key] = re
	e.mu.Unlock()
	return re, nil
}

// SingleMatch reports whether content matches a single SearchQuery clause.
// A regex that fails to compile degrades to a silent non-match, per the
// documented (deliberately chosen) query-clause error policy; log_start_pattern
// compilation failures are handled separately by the engine as fatal setup
// errors.
func (e *Evaluator) SingleMatch(content string, q model.SearchQuery) bool {
	if q.Query == nil || *q.Query == "" {
		return true
	}
	needle := *q.Query

	if q.Regex {
		re, err := e.compile(needle, q.CaseSensitive)
		if err != nil {
			return false
		}
		return re.MatchString(content)
	}

	if q.WholeWord {
		re, err := e.compile(`\b`+regexp.QuoteMeta(needle)+`\b`, q.CaseSensitive)
		if err != nil {
			return false
		}
		return re.MatchString(content)
	}

	if q.CaseSensitive {
		return strings.Contains(content, needle)
	}
	return strings.Contains(strings.ToLower(content), strings.ToLower(needle))
}

// LogicalMatch evaluates the three-clause Boolean query against content:
// every must clause matches, any is empty or satisfied by at least one
// member, and no none clause matches. Evaluation short-circuits in that
// order.
func (e *Evaluator) LogicalMatch(content string, lq model.LogicalQuery) bool {
	for _, q := range lq.Must {
		if !e.SingleMatch(content, q) {
			return false
		}
	}
	if len(lq.Any) > 0 {
		matched := false
		for _, q := range lq.Any {
			if e.SingleMatch(content, q) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, q := range lq.None {
		if e.SingleMatch(content, q) {
			return false
		}
	}
	return true
}

// FindPositions returns every byte-offset span of q's match within text.
// Offsets for the plain-text (non-regex) cases are computed against a
// lowercased copy of text when case-insensitive, so they are only valid
// offsets into the original bytes for ASCII content; this mirrors the
// observed contract rather than a codepoint-safe case-fold, and is called
// out as an open question rather than silently "fixed".
func (e *Evaluator) FindPositions(text string, q model.SearchQuery) []model.MatchPosition {
	if q.Query == nil || *q.Query == "" {
		return nil
	}
	needle := *q.Query

	if q.Regex {
		re, err := e.compile(needle, q.CaseSensitive)
		if err != nil {
			return nil
		}
		idx := re.FindAllStringIndex(text, -1)
		out := make([]model.MatchPosition, 0, len(idx))
		for _, m := range idx {
			out = append(out, model.MatchPosition{Offset: m[0], Length: m[1] - m[0]})
		}
		return out
	}

	if q.WholeWord {
		return findWholeWordPositions(text, needle, q.CaseSensitive)
	}

	haystack := text
	n := needle
	if !q.CaseSensitive {
		haystack = strings.ToLower(text)
		n = strings.ToLower(needle)
	}
	if n == "" {
		return nil
	}

	var out []model.MatchPosition
	pos := 0
	for {
		idx := strings.Index(haystack[pos:], n)
		if idx < 0 {
			break
		}
		start := pos + idx
		out = append(out, model.MatchPosition{Offset: start, Length: len(n)})
		pos = start + len(n)
	}
	return out
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_'
}

func findWholeWordPositions(text, needle string, caseSensitive bool) []model.MatchPosition {
	if needle == "" {
		return nil
	}
	haystack := text
	n := needle
	if !caseSensitive {
		haystack = strings.ToLower(text)
		n = strings.ToLower(needle)
	}

	var out []model.MatchPosition
	nl := len(n)
	for i := 0; i+nl <= len(haystack); i++ {
		if haystack[i:i+nl] != n {
			continue
		}
		beforeOK := i == 0 || !isWordByte(haystack[i-1])
		afterOK := i+nl == len(haystack) || !isWordByte(haystack[i+nl])
		if beforeOK && afterOK {
			out = append(out, model.MatchPosition{Offset: i, Length: nl})
		}
	}
	return out
}

// CompiledTimeFilter is a per-request, pre-compiled TimeFilter shared across
// every per-file task so the timestamp regex is compiled exactly once.
type CompiledTimeFilter struct {
	Regex *regexp.Regexp
	Start *time.Time
	End   *time.Time
}

// CompileTimeFilter compiles tf once per request. A nil tf, or one with no
// timestamp_regex, yields a nil *CompiledTimeFilter (meaning: accept
// everything).
func CompileTimeFilter(tf *model.TimeFilter) (*CompiledTimeFilter, error) {
	if tf == nil || tf.TimestampRegex == nil || *tf.TimestampRegex == "" {
		return nil, nil
	}

	re, err := regexp.Compile(*tf.TimestampRegex)
	if err != nil {
		return nil, logerrors.NewRegexError(*tf.TimestampRegex, "timestamp_regex compile failed", err)
	}

	out := &CompiledTimeFilter{Regex: re}
	if tf.TimeStart != nil && *tf.TimeStart != "" {
		t, err := parseTimestamp(*tf.TimeStart)
		if err != nil {
			return nil, logerrors.NewTimeParseError(*tf.TimeStart)
		}
		out.Start = &t
	}
	if tf.TimeEnd != nil && *tf.TimeEnd != "" {
		t, err := parseTimestamp(*tf.TimeEnd)
		if err != nil {
			return nil, logerrors.NewTimeParseError(*tf.TimeEnd)
		}
		out.End = &t
	}
	return out, nil
}

// Apply reports whether text passes ctf. A nil ctf always accepts. When the
// regex finds no match, or the matched substring fails to parse as a
// timestamp, the entry is accepted rather than rejected (fail-open, per the
// documented contract).
func Apply(text string, ctf *CompiledTimeFilter) bool {
	if ctf == nil {
		return true
	}
	m := ctf.Regex.FindString(text)
	if m == "" {
		return true
	}
	ts, err := parseTimestamp(m)
	if err != nil {
		return true
	}
	if ctf.Start != nil && ts.Before(*ctf.Start) {
		return false
	}
	if ctf.End != nil && ts.After(*ctf.End) {
		return false
	}
	return true
}

// parseTimestamp tries, in order: RFC-3339, "YYYY-MM-DD HH:MM:SS",
// "YYYY-MM-DD HH:MM:SS.fff", then the same three with T/space normalization
// of the input applied first.
func parseTimestamp(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.000",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	normalized := normalizeSeparator(s)
	if normalized != s {
		for _, layout := range layouts {
			if t, err := time.Parse(layout, normalized); err == nil {
				return t.UTC(), nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("unparseable timestamp: %q", s)
}

// normalizeSeparator flips the T/space separator between date and time so
// both "2024-01-01T12:00:00" and "2024-01-01 12:00:00" are tried against
// every layout.
func normalizeSeparator(s string) string {
	if idx := strings.IndexByte(s, 'T'); idx > 0 && idx < len(s)-1 {
		if isDigit(s[idx-1]) && isDigit(s[idx+1]) {
			return s[:idx] + " " + s[idx+1:]
		}
	}
	if idx := strings.IndexByte(s, ' '); idx > 0 {
		return s[:idx] + "T" + s[idx+1:]
	}
	return s
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
