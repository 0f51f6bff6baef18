package main

import (
	"github.com/spf13/cobra"

	"github.com/axiom/sqlagent/internal/relevance"
)

var (
	classifyQuestion string
	classifySQL      string
	classifyLanguage string
)

var classifyCmd = &cobra.Command{
	Use:   "classify <assertion>...",
	Short: "Label evidence assertions as strict, weak or irrelevant",
	Example: `  sqlagent classify --question "revenue per customer" \
    --sql "SELECT customer_id, SUM(total) FROM orders GROUP BY customer_id" \
    "revenue is the sum of order totals"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := relevance.NewClassifier(relevance.DefaultConfig(), logger)
		res := c.Classify(cmd.Context(), relevance.Input{
			Question:       classifyQuestion,
			SQL:            classifySQL,
			Assertions:     args,
			SchemaLanguage: classifyLanguage,
		})
		return render(res)
	},
}

func init() {
	f := classifyCmd.Flags()
	f.StringVar(&classifyQuestion, "question", "", "the user question")
	f.StringVar(&classifySQL, "sql", "", "the candidate SQL")
	f.StringVar(&classifyLanguage, "schema-language", "", "language of the schema identifiers")
	_ = classifyCmd.MarkFlagRequired("question")
	_ = classifyCmd.MarkFlagRequired("sql")
}
