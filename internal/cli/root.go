// Package cli implements the facade command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/othierry/facade"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands.
type cmdContext struct {
	Options *facade.Options
	Stack   *facade.Stack
}

// Close releases resources held by cmdContext.
func (c *cmdContext) Close() {
	if c.Stack != nil {
		c.Stack.Close()
	}
}

var (
	configPath string
	verbose    bool
)

// initContext loads the options file and builds the stack, without
// connecting the store.
func initContext() *cmdContext {
	opts, err := facade.LoadOptions(configPath)
	if err != nil {
		exitError("%v", err)
	}

	logger := log.New(os.Stderr)
	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	opts.Logger = logger

	s, err := facade.New(*opts)
	if err != nil {
		exitError("%v", err)
	}
	return &cmdContext{Options: opts, Stack: s}
}

// initConnectedContext additionally opens the store.
func initConnectedContext() *cmdContext {
	ctx := initContext()
	if err := ctx.Stack.Connect(); err != nil {
		ctx.Close()
		exitError("failed to connect store: %v", err)
	}
	return ctx
}

var rootCmd = &cobra.Command{
	Use:   "facade",
	Short: "Persistent store management",
	Long: `Facade manages an entity store described by a model file: inspect its
contents, seed it from a prepared file, back it up and reset it.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "facade.toml", "Options file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose diagnostics")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(completionCmd)
}

// exitError prints an error and exits.
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortID returns first 8 characters of an ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
