// Command labparse applies a YAML rule file to lab result records from the
// command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/labparser/internal/config"
	"github.com/liamcoop/labparser/internal/logger"
	"github.com/liamcoop/labparser/labparser"
	"github.com/liamcoop/labparser/rules"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	if err := Execute(Version, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		_ = logger.Shutdown(context.Background())
		os.Exit(1)
	}
	_ = logger.Shutdown(context.Background())
}

// Execute is the entry point for the CLI, extracted for testing.
func Execute(version string, args []string, in io.Reader, out io.Writer) error {
	rootCmd := &cobra.Command{
		Use:           "labparse",
		Short:         "Extract test values from free-text lab results",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate(`{{.Version}}
`)
	// stdout carries the JSON results.
	logger.SetOutput(rootCmd.ErrOrStderr())
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newParseCmd(in, out), newCheckCmd(out))
	rootCmd.SetArgs(args)
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)

	return rootCmd.Execute()
}

// loadEngine builds an engine over an in-memory store seeded from the rules
// path in settings.
func loadEngine(cmd *cobra.Command) (*rules.Engine, error) {
	settings, err := config.LoadSettingsWithFlags(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings.RulesPath == "" {
		return nil, fmt.Errorf("--rules is required")
	}
	if err := config.ValidateSettings(settings); err != nil {
		return nil, err
	}

	rf, err := rules.LoadPath(settings.RulesPath)
	if err != nil {
		return nil, err
	}
	store := rules.NewInMemoryDefinitionStore()
	if err := rf.Seed(store); err != nil {
		return nil, err
	}

	return rules.NewEngine(store,
		rules.WithCompiler(labparser.NewCompiler(settings.CompilerOptions()...)),
		rules.WithBatchOptions(settings.BatchOptions()...))
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
