package cliapp

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leshy-dns/leshy/internal/config"
	"github.com/leshy-dns/leshy/internal/output"
)

func newValidateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse and validate a configuration file without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "configuration OK: %s\n", configPath)
			fmt.Fprintf(os.Stdout, "listen_address=%s route_failure_mode=%s default_upstream=%d server(s)\n",
				cfg.ListenAddress, cfg.RouteFailureMode, len(cfg.DefaultUpstream))

			t := output.NewTable([]string{"zone", "mode", "route", "target", "domains"})
			for _, z := range cfg.Zones {
				route := "-"
				target := "-"
				if z.Policy.HasRoutePolicy() {
					route = string(z.Policy.TargetType)
					target = z.Policy.TargetValue
				}
				t.AddRow([]string{z.Name, string(z.Policy.Mode), route, target, fmt.Sprintf("%d", len(z.Domains))})
			}
			return t.Render(os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "/etc/leshy/leshy.toml", "path to the configuration file")
	return cmd
}
