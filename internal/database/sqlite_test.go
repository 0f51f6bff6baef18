package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/database"
	"github.com/axiom/sqlagent/internal/dialect"
	"github.com/axiom/sqlagent/internal/models"
	"github.com/axiom/sqlagent/internal/relevance"
	"github.com/axiom/sqlagent/internal/retry"
	"github.com/axiom/sqlagent/internal/verifier"
)

var fixtures = []string{
	`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL, active BOOLEAN NOT NULL)`,
	`CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER NOT NULL, total REAL NOT NULL)`,
	`INSERT INTO customers VALUES (1, 'ada', 1), (2, 'grace', 1), (3, 'linus', 0)`,
	`INSERT INTO orders VALUES (1, 1, 10.5), (2, 1, 4.5), (3, 2, 30), (4, 3, 1)`,
}

func newExecutor(t *testing.T) *database.SQLiteExecutor {
	t.Helper()
	exec, err := database.NewSQLiteExecutor(context.Background(), ":memory:", fixtures...)
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })
	return exec
}

func TestSQLiteExecute(t *testing.T) {
	exec := newExecutor(t)
	rows, err := exec.Execute(context.Background(),
		`SELECT c.name, SUM(o.total) AS revenue FROM customers c JOIN orders o ON o.customer_id = c.id GROUP BY c.name ORDER BY revenue DESC LIMIT 2`)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "revenue"}, rows.Columns)
	require.Equal(t, 2, rows.Len())
	assert.Equal(t, "grace", rows.Values[0][0])
}

func TestSQLiteIsQueryOnly(t *testing.T) {
	exec := newExecutor(t)
	_, err := exec.Execute(context.Background(), `DELETE FROM orders`)
	assert.Error(t, err)

	rows, err := exec.Execute(context.Background(), `SELECT COUNT(*) FROM orders`)
	require.NoError(t, err)
	assert.EqualValues(t, 4, rows.Values[0][0])
}

func TestSQLiteProbe(t *testing.T) {
	exec := newExecutor(t)
	ctx := context.Background()
	assert.NoError(t, exec.ProbeSyntax(ctx, `SELECT name FROM customers`, dialect.SQLite))
	assert.Error(t, exec.ProbeSyntax(ctx, `SELECT name FORM customers`, dialect.SQLite))
	assert.Error(t, exec.ProbeSyntax(ctx, `SELECT name FROM nowhere`, dialect.SQLite))
}

func TestValidatorAgainstSQLite(t *testing.T) {
	exec := newExecutor(t)
	v, err := verifier.NewValidator(verifier.Options{
		Dialect:             dialect.SQLite,
		Question:            "active customers",
		TreatEmptyAsFailure: true,
		SchemaText:          fixtures[0] + ";\n" + fixtures[1],
	}, exec, nil, relevance.NewClassifier(relevance.DefaultConfig(), zap.NewNop()), zap.NewNop())
	require.NoError(t, err)

	tests := []struct {
		name      string
		raw       string
		sanitized string
		category  retry.Category
	}{
		{"native limit", `SELECT name FROM customers WHERE active = TRUE LIMIT 5;`, `SELECT name FROM customers WHERE active = TRUE LIMIT 5`, ""},
		{"quoting", "SELECT `name` FROM [customers]", `SELECT "name" FROM "customers"`, ""},
		{"empty result", `SELECT name FROM customers WHERE name = 'nobody'`, "", retry.CategoryEmptyResult},
		{"unknown column", `SELECT nickname FROM customers`, "", retry.CategorySchemaError},
		{"syntax", `SELECT name FROM customers WHERE`, "", retry.CategorySyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := verifier.NewCandidate(tt.raw, "", models.TierBasic, "sqlite-agent")
			rc := retry.NewContext("active customers", string(dialect.SQLite))
			re := v.Validate(context.Background(), c, rc)
			if tt.category == "" {
				require.Nil(t, re)
				assert.Equal(t, tt.sanitized, c.Sanitized)
				return
			}
			require.NotNil(t, re)
			assert.Equal(t, tt.category, re.Category)
		})
	}
}

func TestCacheKey(t *testing.T) {
	a := database.CacheKey("sales", "postgresql", "Top 5  customers by revenue")
	b := database.CacheKey("sales", "postgresql", "top 5 customers BY revenue")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, database.CacheKey("sales", "sqlserver", "top 5 customers by revenue"))
	assert.NotEqual(t, a, database.CacheKey("hr", "postgresql", "top 5 customers by revenue"))
	assert.Len(t, a, len("sqlagent:result:")+64)
}

func TestExecutorsByURL(t *testing.T) {
	fallback := newExecutor(t)
	src := database.NewExecutors(fallback, zap.NewNop())
	defer src.Close()
	ctx := context.Background()

	exec, release, err := src.Executor(ctx, &config.Workspace{ID: "default"})
	require.NoError(t, err)
	assert.Same(t, fallback, exec)
	release()

	path := filepath.Join(t.TempDir(), "target.db")
	exec, release, err = src.Executor(ctx, &config.Workspace{ID: "file", DatabaseURL: "sqlite://" + path})
	require.NoError(t, err)
	rows, err := exec.Execute(ctx, "SELECT 1 AS one")
	require.NoError(t, err)
	assert.Equal(t, 1, rows.Len())
	release()

	_, _, err = src.Executor(ctx, &config.Workspace{ID: "odd", DatabaseURL: "mysql://x"})
	assert.ErrorContains(t, err, "unsupported")

	_, _, err = database.NewExecutors(nil, zap.NewNop()).Executor(ctx, &config.Workspace{ID: "none"})
	assert.Error(t, err)
}
