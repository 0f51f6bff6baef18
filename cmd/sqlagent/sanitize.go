package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/axiom/sqlagent/internal/dialect"
)

var sanitizeDialect string

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize [sql]",
	Short: "Rewrite a read-only query for a dialect",
	Long: `Check that a statement is a single read-only query and rewrite its
quoting, casts, concatenation, booleans, functions and row limits for the
target dialect. Reads the statement from stdin when no argument is given.`,
	Example: `  sqlagent sanitize --dialect sqlserver "SELECT name FROM customers LIMIT 5"
  cat query.sql | sqlagent sanitize --dialect oracle`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := dialect.Parse(sanitizeDialect)
		if err != nil {
			return err
		}
		sql, err := statement(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		out, err := dialect.Sanitize(sql, d)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	sanitizeCmd.Flags().StringVarP(&sanitizeDialect, "dialect", "d", "postgresql",
		"target dialect ("+strings.Join(dialect.Names(), ", ")+")")
}

// statement returns the joined arguments, or stdin when there are none.
func statement(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading statement: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", fmt.Errorf("no statement given")
	}
	return string(raw), nil
}

func readFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(raw), nil
}
