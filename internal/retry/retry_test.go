package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Category
	}{
		{errors.New(`ERROR: syntax error at or near "FORM" (SQLSTATE 42601)`), CategorySyntax},
		{errors.New(`ERROR: relation "custmers" does not exist`), CategorySchemaError},
		{errors.New("no such table: orders"), CategorySchemaError},
		{errors.New("Invalid object name 'dbo.Orders'."), CategorySchemaError},
		{errors.New("division by zero"), CategoryExecutionError},
		{fmt.Errorf("probe: %w", context.DeadlineExceeded), CategoryExecutionError},
		{fmt.Errorf("wrapped: %w", New(CategoryEmptyResult, "no rows")), CategoryEmptyResult},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), tt.err.Error())
	}
	assert.Equal(t, Category(""), Classify(nil))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CategoryExecutionError, cause)
	assert.ErrorIs(t, err, cause)

	re, ok := As(fmt.Errorf("outer: %w", err))
	require.True(t, ok)
	assert.Equal(t, CategoryExecutionError, re.Category)
}

func TestHistoryBounded(t *testing.T) {
	f := MustFormatter()
	rc := NewContext("top 5 customers", "postgresql")
	for i := 0; i < 20; i++ {
		_, err := f.Format(rc, "SELECT 1", New(CategorySyntax, fmt.Sprintf("failure %d", i)))
		require.NoError(t, err)
		assert.LessOrEqual(t, len(rc.History), MaxHistory)
	}
	require.Len(t, rc.History, MaxHistory)
	assert.Equal(t, 20, rc.RetryCount)
	assert.Equal(t, "failure 12", rc.History[0].Message)
	assert.Equal(t, "failure 19", rc.History[MaxHistory-1].Message)
}

func TestFormatWordingDiffersByCategory(t *testing.T) {
	f := MustFormatter()
	seen := map[string]Category{}
	for _, cat := range Categories() {
		rc := NewContext("q", "mysql")
		msg, err := f.Format(rc, "SELECT * FROM t", New(cat, "the message", "h1"))
		require.NoError(t, err)
		assert.Contains(t, msg, "SELECT * FROM t")
		assert.Contains(t, msg, "Attempt 1")
		assert.Contains(t, msg, "the message")

		body := strings.SplitN(msg, "\n", 4)[3]
		if prev, dup := seen[body]; dup {
			t.Errorf("%s renders the same text as %s", cat, prev)
		}
		seen[body] = cat
	}
}

func TestFormatCapsHints(t *testing.T) {
	f := MustFormatter()
	rc := NewContext("q", "postgresql")
	msg, err := f.Format(rc, "SELECT x FROM t", New(CategorySchemaError, "bad column", "a", "b", "c", "d"))
	require.NoError(t, err)
	assert.Contains(t, msg, "- c\n")
	assert.NotContains(t, msg, "- d\n")
}

func TestFormatIncludesEarlierFailures(t *testing.T) {
	f := MustFormatter()
	rc := NewContext("q", "postgresql")
	_, err := f.Format(rc, "SELECT 1", New(CategorySyntax, "first"))
	require.NoError(t, err)
	msg, err := f.Format(rc, "SELECT 2", New(CategoryEvidenceMismatch, "second", "revenue is positive"))
	require.NoError(t, err)

	assert.Contains(t, msg, "#1 syntax: first")
	assert.Contains(t, msg, "* revenue is positive")
	assert.Equal(t, []string{"revenue is positive"}, rc.FailedTests)
}

func TestRecord(t *testing.T) {
	rc := NewContext("q", "sqlite")
	rc.Record("SELECT 1", errors.New("explain failed"))
	assert.Equal(t, "SELECT 1", rc.LastSQL)
	assert.Equal(t, "explain failed", rc.LastError)

	rc.Record("SELECT 2", nil)
	assert.Equal(t, "SELECT 2", rc.LastSQL)
	assert.Empty(t, rc.LastError)
}
