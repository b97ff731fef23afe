package main

import (
	"fmt"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program satisfies service.Interface. The installed unit runs
// "tavern start" directly, so there is nothing to do in-process.
type program struct{}

func (program) Start(service.Service) error { return nil }
func (program) Stop(service.Service) error  { return nil }

// serviceConfig describes the OS service that runs "tavern start".
func serviceConfig(cfgPath string) (*service.Config, error) {
	args := []string{"start"}
	if cfgPath != "" {
		abs, err := filepath.Abs(cfgPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	return &service.Config{
		Name:        "tavern",
		DisplayName: "Tavern prompt assembler",
		Description: "Serves prompt assembly over HTTP.",
		Arguments:   args,
	}, nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage tavern as an OS service",
	}
	for _, action := range []struct{ name, short string }{
		{"install", "Install the service"},
		{"uninstall", "Remove the service"},
		{"start", "Start the installed service"},
		{"stop", "Stop the running service"},
		{"restart", "Restart the service"},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   action.name,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfgPath, _ := cmd.Flags().GetString("config")
				svcCfg, err := serviceConfig(cfgPath)
				if err != nil {
					return err
				}
				s, err := service.New(program{}, svcCfg)
				if err != nil {
					return err
				}
				if err := service.Control(s, action.name); err != nil {
					return fmt.Errorf("service %s: %w", action.name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service %s: ok\n", action.name)
				return nil
			},
		})
	}
	return cmd
}
