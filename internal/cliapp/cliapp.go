// Package cliapp builds leshy's cobra command tree: serve, validate,
// and version.
package cliapp

import (
	"github.com/spf13/cobra"
)

// Version is set by cmd/leshy from its ldflags-injected version before
// the command tree is built.
var Version = "dev"

// NewRootCommand assembles the full command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "leshy",
		Short:         "Recursive-forwarder DNS server with DNS-driven split tunneling",
		Long:          "leshy resolves DNS queries per zone, forwarding upstream with failover, and installs kernel routes for the addresses it observes in responses.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newValidateCommand())
	root.AddCommand(newVersionCommand())

	return root
}
