package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/logsearch-mcp/internal/model"
)

func strPtr(s string) *string { return &s }

func TestLogicalMatchMustAnyNone(t *testing.T) {
	e := NewEvaluator()
	content := "error connecting to database: timeout"

	lq := model.LogicalQuery{
		Must: []model.SearchQuery{{Query: strPtr("error")}},
		Any:  []model.SearchQuery{{Query: strPtr("database")}, {Query: strPtr("network")}},
		None: []model.SearchQuery{{Query: strPtr("retry succeeded")}},
	}
	require.True(t, e.LogicalMatch(content, lq))

	lq.None = []model.SearchQuery{{Query: strPtr("timeout")}}
	require.False(t, e.LogicalMatch(content, lq))
}

func TestLogicalMatchEmptyAnyClauseIsVacuouslyTrue(t *testing.T) {
	e := NewEvaluator()
	lq := model.LogicalQuery{Must: []model.SearchQuery{{Query: strPtr("hello")}}}
	require.True(t, e.LogicalMatch("hello world", lq))
}

func TestFindPositionsCollectedInMustAnyNoneOrder(t *testing.T) {
	e := NewEvaluator()
	content := "alpha beta gamma"

	lq := model.LogicalQuery{
		Must: []model.SearchQuery{{Query: strPtr("alpha")}},
		Any:  []model.SearchQuery{{Query: strPtr("beta")}},
		None: []model.SearchQuery{{Query: strPtr("delta")}},
	}
	require.True(t, e.LogicalMatch(content, lq))

	var positions []model.MatchPosition
	for _, q := range lq.Must {
		positions = append(positions, e.FindPositions(content, q)...)
	}
	for _, q := range lq.Any {
		positions = append(positions, e.FindPositions(content, q)...)
	}
	for _, q := range lq.None {
		positions = append(positions, e.FindPositions(content, q)...)
	}

	require.Len(t, positions, 2)
	require.Equal(t, 0, positions[0].Offset)
	require.Equal(t, 6, positions[1].Offset)
}

func TestFindPositionsWholeWord(t *testing.T) {
	e := NewEvaluator()
	q := model.SearchQuery{Query: strPtr("cat"), WholeWord: true}

	positions := e.FindPositions("cat catalog cat", q)
	require.Len(t, positions, 2)
	require.Equal(t, 0, positions[0].Offset)
	require.Equal(t, 12, positions[1].Offset)
}

func TestFindPositionsRegex(t *testing.T) {
	e := NewEvaluator()
	q := model.SearchQuery{Query: strPtr(`\d+`), Regex: true}

	positions := e.FindPositions("error 42 and 7", q)
	require.Len(t, positions, 2)
	require.Equal(t, 2, positions[0].Length)
	require.Equal(t, 1, positions[1].Length)
}

func TestCompileTimeFilterRejectsBadRegex(t *testing.T) {
	bad := "("
	_, err := CompileTimeFilter(&model.TimeFilter{TimestampRegex: &bad})
	require.Error(t, err)
}

func TestApplyTimeFilterRange(t *testing.T) {
	re := `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`
	start := "2024-01-01 00:00:00"
	end := "2024-01-31 23:59:59"
	ctf, err := CompileTimeFilter(&model.TimeFilter{
		TimestampRegex: &re,
		TimeStart:      &start,
		TimeEnd:        &end,
	})
	require.NoError(t, err)

	require.True(t, Apply("2024-01-15 12:00:00 inside range", ctf))
	require.False(t, Apply("2024-02-01 00:00:01 outside range", ctf))
}

func TestApplyFailsOpenOnUnparseableTimestamp(t *testing.T) {
	re := `BADTS-\d+`
	start := "2024-01-01 00:00:00"
	ctf, err := CompileTimeFilter(&model.TimeFilter{TimestampRegex: &re, TimeStart: &start})
	require.NoError(t, err)

	require.True(t, Apply("BADTS-9999 nonsense timestamp", ctf))
}

func TestApplyFailsOpenWhenRegexHasNoMatch(t *testing.T) {
	re := `\d{4}-\d{2}-\d{2}`
	start := "2024-01-01 00:00:00"
	ctf, err := CompileTimeFilter(&model.TimeFilter{TimestampRegex: &re, TimeStart: &start})
	require.NoError(t, err)

	require.True(t, Apply("no timestamp here at all", ctf))
}
