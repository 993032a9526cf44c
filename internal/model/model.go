// Package model holds the wire and pipeline data types shared by the
// scanner, reader, parser, query evaluator, and engine.
package model

import "encoding/json"

// FileScanConfig describes how the Scanner should enumerate candidate files.
type FileScanConfig struct {
	RootPath     string   `json:"root_path"`
	IncludeGlobs []string `json:"include_globs,omitempty"`
	ExcludeGlobs []string `json:"exclude_globs,omitempty"`
}

// DefaultIncludeGlobs is applied by the Scanner whenever IncludeGlobs is empty.
var DefaultIncludeGlobs = []string{"**/*.log", "**/*.log.gz", "**/*.gz"}

// SearchQuery is a single match clause. It accepts either a bare JSON string
// (shorthand for a plain, case-insensitive substring match) or a full
// object at the deserialization boundary.
type SearchQuery struct {
	Query         *string `json:"query,omitempty"`
	Regex         bool    `json:"regex,omitempty"`
	CaseSensitive bool    `json:"case_sensitive,omitempty"`
	WholeWord     bool    `json:"whole_word,omitempty"`
}

// UnmarshalJSON implements the bare-string-or-object input adapter described
// in the time-filter/query design notes: a plain string is shorthand for
// {query: s, regex: false, case_sensitive: false, whole_word: false}.
func (q *SearchQuery) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		q.Query = &s
		q.Regex = false
		q.CaseSensitive = false
		q.WholeWord = false
		return nil
	}

	type Alias SearchQuery
	aux := (*Alias)(q)
	return json.Unmarshal(data, aux)
}

// LogicalQuery is a compound Boolean query over three independent clauses.
type LogicalQuery struct {
	Must []SearchQuery `json:"must,omitempty"`
	Any  []SearchQuery `json:"any,omitempty"`
	None []SearchQuery `json:"none,omitempty"`
}

// TimeFilter restricts matches to entries whose extracted timestamp falls
// within [Start, End]. It accepts several field-name aliases on input.
type TimeFilter struct {
	TimeStart      *string `json:"time_start,omitempty"`
	TimeEnd        *string `json:"time_end,omitempty"`
	TimestampRegex *string `json:"timestamp_regex,omitempty"`
}

// UnmarshalJSON accepts the canonical field names plus the documented
// aliases: start_time/startTime/after for TimeStart and
// end_time/endTime/before for TimeEnd.
func (t *TimeFilter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	readString := func(keys ...string) (*string, error) {
		for _, k := range keys {
			v, ok := raw[k]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, err
			}
			return &s, nil
		}
		return nil, nil
	}

	start, err := readString("time_start", "start_time", "startTime", "after")
	if err != nil {
		return err
	}
	end, err := readString("time_end", "end_time", "endTime", "before")
	if err != nil {
		return err
	}
	regex, err := readString("timestamp_regex")
	if err != nil {
		return err
	}

	t.TimeStart = start
	t.TimeEnd = end
	t.TimestampRegex = regex
	return nil
}

// SearchRequest is the top-level request understood by Engine.Search.
type SearchRequest struct {
	ScanConfig      FileScanConfig `json:"scan_config"`
	LogicalQuery    LogicalQuery   `json:"logical_query"`
	TimeFilter      *TimeFilter    `json:"time_filter,omitempty"`
	LogStartPattern *string        `json:"log_start_pattern,omitempty"`
	PageSize        int            `json:"page_size"`
	Page            *int           `json:"page,omitempty"`
	MaxHits         *int           `json:"max_hits,omitempty"`
	HardTimeoutMs   *int           `json:"hard_timeout_ms,omitempty"`
	IncludeContent  *bool          `json:"include_content,omitempty"`
}

// IncludeContentOrDefault resolves the include_content default of true.
func (r *SearchRequest) IncludeContentOrDefault() bool {
	if r.IncludeContent == nil {
		return true
	}
	return *r.IncludeContent
}

// PageOrDefault resolves the page default of 1. An explicit page of 0 (as
// opposed to an omitted field) is left as 0 so validation can reject it.
func (r *SearchRequest) PageOrDefault() int {
	if r.Page == nil {
		return 1
	}
	return *r.Page
}

// LogEntry is a logical record assembled by the Parser: one or more
// consecutive decoded lines, each still carrying its trailing newline.
type LogEntry struct {
	FilePath  string
	StartLine int
	EndLine   int
	Content   string
}

// MatchPosition is a byte-offset span of a match within a HitResult's content.
type MatchPosition struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

// HitResult is a LogEntry that satisfied the request's LogicalQuery and
// TimeFilter, carrying its match byte positions.
type HitResult struct {
	FilePath       string          `json:"file_path"`
	StartLine      int             `json:"start_line"`
	EndLine        int             `json:"end_line"`
	Content        string          `json:"content"`
	MatchPositions []MatchPosition `json:"match_positions"`
}

// FailedFile records a per-file pipeline failure that did not abort the
// overall request.
type FailedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// SearchResponse is the paginated result of one Engine.Search call.
type SearchResponse struct {
	TotalHits       int          `json:"total_hits"`
	Page            int          `json:"page"`
	PageSize        int          `json:"page_size"`
	TotalPages      int          `json:"total_pages"`
	Hits            []HitResult  `json:"hits"`
	ExecutionTimeMs int64        `json:"execution_time_ms"`
	FilesScanned    int          `json:"files_scanned"`
	TimedOut        bool         `json:"timed_out"`
	FailedFiles     []FailedFile `json:"failed_files"`
}

// FileInfo is the result of the Reader's optional inspection capability,
// supplementing the core scan/search contract with file-level metadata.
type FileInfo struct {
	Path               string   `json:"path"`
	SizeBytes          int64    `json:"size_bytes"`
	Encoding           string   `json:"encoding"`
	Compression        string   `json:"compression"`
	TimestampExamples  []string `json:"timestamp_examples,omitempty"`
}
