// cmd/gpgbridge/version.go
// Implements the `gpgbridge version` sub-command, printing build metadata
// injected via pkg/version. Supports an optional --json flag for machine
// consumption.
//go:build cli
// +build cli

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nimbusrelay/gpgbridge/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print gpgbridge version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(version.Map())
			}
			fmt.Println(version.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Print version information as JSON")
	return cmd
}
