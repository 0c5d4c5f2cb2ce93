package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"igmonitor/pkg/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status snapshot a running monitor persisted",
	Long: `Read the file written by --status-file and print it as JSON.

Use this when the HTTP status panel is disabled or the monitor has exited.`,
	Example: `  igmonitor basic --username natgeo --status-file ./status.json &
  igmonitor status --status-file ./status.json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusFile == "" {
		return errors.New("--status-file is required")
	}

	snap, err := status.Load(statusFile)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("no status recorded at %s", statusFile)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
