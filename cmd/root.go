package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the slotbook application
var rootCmd = &cobra.Command{
	Use:   "slotbook",
	Short: "Finds open meeting slots and books them into Google Calendar",
	Long: `slotbook offers open meeting slots from a Google Calendar and books the
chosen slot as an event with a Google Meet link.

It can run as:
  - An HTTP API for a booking page (serve)
  - An MCP (Model Context Protocol) server for AI assistants (mcp)
  - A command line tool (slots, book)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "slotbook version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newSlotsCmd())
	rootCmd.AddCommand(newBookCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
