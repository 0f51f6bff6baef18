package dialect

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	d, err := Parse(" Postgres ")
	require.NoError(t, err)
	assert.Equal(t, PostgreSQL, d)

	d, err = Parse("mssql")
	require.NoError(t, err)
	assert.Equal(t, SQLServer, d)

	_, err = Parse("db2")
	assert.Error(t, err)
}

func TestSanitizeRejectsWrites(t *testing.T) {
	for _, sql := range []string{
		"DELETE FROM users",
		"UPDATE users SET name = 'x'",
		"SELECT * INTO backup FROM users",
		"SELECT 1; DROP TABLE users",
		"",
		"-- only a comment",
	} {
		_, err := Sanitize(sql, PostgreSQL)
		assert.ErrorIs(t, err, ErrNotReadOnly, sql)
	}
}

func TestSanitizeKeepsNativePagination(t *testing.T) {
	out, err := Sanitize("SELECT id FROM users LIMIT 5;", PostgreSQL)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM users LIMIT 5", out)
}

func TestSanitizePagination(t *testing.T) {
	tests := []struct {
		name string
		in   string
		d    Dialect
		want string
	}{
		{"limit to top", "SELECT id FROM users LIMIT 5", SQLServer, "SELECT TOP 5 id FROM users"},
		{"limit to top distinct", "SELECT DISTINCT id FROM users LIMIT 5", SQLServer, "SELECT DISTINCT TOP 5 id FROM users"},
		{"offset to fetch", `SELECT "id" FROM users ORDER BY id LIMIT 5 OFFSET 10`, SQLServer,
			"SELECT [id] FROM users ORDER BY id OFFSET 10 ROWS FETCH NEXT 5 ROWS ONLY"},
		{"limit to fetch first", "SELECT id FROM users LIMIT 3", Oracle, "SELECT id FROM users FETCH FIRST 3 ROWS ONLY"},
		{"top to limit", "SELECT TOP 7 id FROM users", MySQL, "SELECT id FROM users LIMIT 7"},
		{"offset only mysql", "SELECT id FROM users OFFSET 4", MySQL, "SELECT id FROM users LIMIT 18446744073709551615 OFFSET 4"},
		{"offset only sqlite", "SELECT id FROM users OFFSET 4", SQLite, "SELECT id FROM users LIMIT -1 OFFSET 4"},
		{"subquery untouched", "SELECT * FROM (SELECT id FROM users LIMIT 2) s", PostgreSQL, "SELECT * FROM (SELECT id FROM users LIMIT 2) s"},
		{"cte limit to top", "WITH c AS (SELECT id FROM t LIMIT 2) SELECT id FROM c LIMIT 5", SQLServer,
			"WITH c AS (SELECT TOP 2 id FROM t) SELECT TOP 5 id FROM c"},
		{"subquery limit to fetch first", "SELECT * FROM ( SELECT id FROM users LIMIT 2 ) s", Oracle,
			"SELECT * FROM ( SELECT id FROM users FETCH FIRST 2 ROWS ONLY ) s"},
		{"nested subqueries", "SELECT * FROM (SELECT id FROM (SELECT id FROM t LIMIT 9) a LIMIT 3) b", SQLServer,
			"SELECT * FROM (SELECT TOP 3 id FROM (SELECT TOP 9 id FROM t) a) b"},
		{"fetch to limit", "SELECT id FROM users FETCH FIRST 2 ROWS ONLY", SQLite, "SELECT id FROM users LIMIT 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize(tt.in, tt.d)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Sanitize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSanitizeOffsetWithoutOrderBy(t *testing.T) {
	_, err := Sanitize("SELECT id FROM users OFFSET 10 LIMIT 5", Oracle)
	assert.True(t, errors.Is(err, ErrIrreconcilable))

	_, err = Sanitize("SELECT id FROM users LIMIT 5 OFFSET 10", SQLServer)
	assert.ErrorIs(t, err, ErrIrreconcilable)
}

func TestSanitizeConflictingClauses(t *testing.T) {
	_, err := Sanitize("SELECT TOP 3 id FROM users LIMIT 5", PostgreSQL)
	assert.ErrorIs(t, err, ErrIrreconcilable)
}

func TestSanitizeUnionTop(t *testing.T) {
	out, err := Sanitize("SELECT a FROM x UNION SELECT a FROM y ORDER BY a LIMIT 5", SQLServer)
	require.NoError(t, err)
	assert.Equal(t, "SELECT a FROM x UNION SELECT a FROM y ORDER BY a OFFSET 0 ROWS FETCH NEXT 5 ROWS ONLY", out)

	_, err = Sanitize("SELECT a FROM x UNION SELECT a FROM y LIMIT 5", SQLServer)
	assert.ErrorIs(t, err, ErrIrreconcilable)
}

func TestSanitizeQuoting(t *testing.T) {
	in := `SELECT "Order"."Total Amount" FROM "Order"`
	cases := map[Dialect]string{
		PostgreSQL: `SELECT "Order"."Total Amount" FROM "Order"`,
		MySQL:      "SELECT `Order`.`Total Amount` FROM `Order`",
		SQLServer:  "SELECT [Order].[Total Amount] FROM [Order]",
	}
	for d, want := range cases {
		got, err := Sanitize(in, d)
		require.NoError(t, err)
		assert.Equal(t, want, got, d)
	}
}

func TestSanitizeConcat(t *testing.T) {
	in := "SELECT first_name || ' ' || last_name AS full_name FROM people"

	got, err := Sanitize(in, MySQL)
	require.NoError(t, err)
	assert.Equal(t, "SELECT CONCAT(first_name, ' ', last_name) AS full_name FROM people", got)

	got, err = Sanitize(in, SQLServer)
	require.NoError(t, err)
	assert.Equal(t, "SELECT first_name + ' ' + last_name AS full_name FROM people", got)

	got, err = Sanitize(in, SQLite)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestSanitizeCasts(t *testing.T) {
	got, err := Sanitize("SELECT p.price::int FROM products p", MySQL)
	require.NoError(t, err)
	assert.Equal(t, "SELECT CAST(p.price AS SIGNED) FROM products p", got)

	got, err = Sanitize("SELECT created_at::text || '!' FROM t", MySQL)
	require.NoError(t, err)
	assert.Equal(t, "SELECT CONCAT(CAST(created_at AS CHAR), '!') FROM t", got)
}

func TestSanitizeBooleans(t *testing.T) {
	got, err := Sanitize("SELECT id FROM users WHERE active = TRUE AND deleted IS NOT TRUE", SQLServer)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM users WHERE active = 1 AND deleted <> 1", got)

	got, err = Sanitize("SELECT id FROM users WHERE active = TRUE", PostgreSQL)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM users WHERE active = TRUE", got)
}

func TestSanitizeFunctions(t *testing.T) {
	tests := []struct {
		d    Dialect
		want string
	}{
		{PostgreSQL, "SELECT length(name), COALESCE(nick, name), NOW() FROM users"},
		{SQLServer, "SELECT LEN(name), ISNULL(nick, name), GETDATE() FROM users"},
		{Oracle, "SELECT length(name), NVL(nick, name), SYSDATE FROM users"},
		{SQLite, "SELECT length(name), IFNULL(nick, name), DATETIME('now') FROM users"},
	}
	for _, tt := range tests {
		got, err := Sanitize("SELECT length(name), IFNULL(nick, name), NOW() FROM users", tt.d)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.d)
	}

	got, err := Sanitize("SELECT SUBSTRING(name FROM 1 FOR 3) FROM users", SQLite)
	require.NoError(t, err)
	assert.Equal(t, "SELECT SUBSTR(name, 1, 3) FROM users", got)
}

func TestSanitizeKeepsCanonicalFunctionSpelling(t *testing.T) {
	in := "SELECT id FROM users WHERE created_at > now() AND length(name) > 3"
	got, err := Sanitize(in, PostgreSQL)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	got, err = Sanitize("SELECT len(name), getdate() FROM users", SQLServer)
	require.NoError(t, err)
	assert.Equal(t, "SELECT len(name), getdate() FROM users", got)
}

func TestSanitizeStripsComments(t *testing.T) {
	got, err := Sanitize("SELECT id /* pk */ FROM users -- all\n", PostgreSQL)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id  FROM users", got)
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		`SELECT "u"."name", COUNT(*) FROM "users" "u" WHERE "u"."active" = TRUE GROUP BY "u"."name" ORDER BY 2 DESC LIMIT 10`,
		"SELECT first_name || ' ' || last_name FROM people ORDER BY id LIMIT 5 OFFSET 5",
		"SELECT price::numeric, length(sku), NOW() FROM products OFFSET 3",
		"WITH recent AS (SELECT id FROM orders LIMIT 100) SELECT id FROM recent ORDER BY id",
	}
	for _, name := range Names() {
		d := Dialect(name)
		for _, in := range inputs {
			once, err := Sanitize(in, d)
			if err != nil {
				// some inputs are irreconcilable for some dialects
				require.ErrorIs(t, err, ErrIrreconcilable)
				continue
			}
			twice, err := Sanitize(once, d)
			require.NoError(t, err, "%s: %s", d, once)
			assert.Equal(t, once, twice, d)
		}
	}
}

func TestProbeStatements(t *testing.T) {
	r, err := RulesFor(SQLServer)
	require.NoError(t, err)
	assert.Equal(t, []string{"SET SHOWPLAN_ALL ON", "SELECT 1", "SET SHOWPLAN_ALL OFF"}, r.ProbeStatements("SELECT 1"))

	r, err = RulesFor(SQLite)
	require.NoError(t, err)
	assert.Equal(t, []string{"EXPLAIN QUERY PLAN SELECT 1"}, r.ProbeStatements("SELECT 1"))
}
