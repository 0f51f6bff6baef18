package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Persistent flags
	cfgFile string
	verbose int
	output  string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sqlagent",
	Short: "Tiered natural-language to SQL generation",
	Long: `sqlagent - tiered natural-language to SQL generation

Generates SQL with pools of model agents, validates every candidate against
the target database and escalates to stronger tiers until a candidate is
accepted.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zapcore.WarnLevel
		switch {
		case verbose >= 2:
			level = zapcore.DebugLevel
		case verbose == 1:
			level = zapcore.InfoLevel
		}
		zapConfig := zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(level)
		zapConfig.OutputPaths = []string{"stderr"}
		var err error
		logger, err = zapConfig.Build()
		return err
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

const (
	groupPipeline = "pipeline"
	groupUtility  = "utility"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "workspace file (default: auto-discover sqlagent.yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "increase log verbosity (can be repeated)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "yaml", "output format: yaml, json")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupPipeline, Title: "Pipeline:"},
		&cobra.Group{ID: groupUtility, Title: "Utility:"},
	)

	generateCmd.GroupID = groupPipeline
	sanitizeCmd.GroupID = groupPipeline
	classifyCmd.GroupID = groupPipeline
	rootCmd.AddCommand(generateCmd, sanitizeCmd, classifyCmd)

	certCmd.GroupID = groupUtility
	eventsCmd.GroupID = groupUtility
	pingCmd.GroupID = groupUtility
	rootCmd.AddCommand(certCmd, eventsCmd, pingCmd)
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// render writes v to stdout in the selected output format.
func render(v any) error {
	switch output {
	case "json":
		return writeJSON(os.Stdout, v)
	case "yaml", "":
		return writeYAML(os.Stdout, v)
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}
