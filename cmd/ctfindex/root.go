package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for ctfindex.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctfindex",
		Short: "Index the write-ups of CTF write-up blogs",
		Long: `ctfindex crawls CTF write-up blogs and builds an index of their write-ups.

Every write-up URL found is classified into Year, CTF, Category and Title,
then exported as a spreadsheet (default: ctf_collection.xlsx), a text
summary, Markdown or JSON. Runs are stored locally so that two crawls of the
same blog can be compared.

Without configuration, the built-in ayweth20 blog is crawled.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
