// cmd/gpgbridge/descriptor.go
// Implements `gpgbridge descriptor <path>`, a small operator utility that
// parses a GnuPG Assuan socket descriptor file the same way the host
// gateway does at startup and prints the result, useful for diagnosing a
// misconfigured host deployment without standing up the gateway itself.
//go:build cli
// +build cli

package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nimbusrelay/gpgbridge/internal/descriptor"
)

func newDescriptorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "descriptor <path>",
		Short: "Parse and print a GnuPG Assuan socket descriptor file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := descriptor.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("port:  %d\n", d.Port)
			fmt.Printf("nonce: %s\n", hex.EncodeToString(d.Nonce[:]))
			return nil
		},
	}
	return cmd
}
