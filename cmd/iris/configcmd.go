package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iris-ai/iris-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit client configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager()
			if err != nil {
				return err
			}
			cfg, err := manager.Load()
			if err != nil {
				return err
			}
			cmd.Printf("base_url:      %s\n", cfg.BaseURL)
			cmd.Printf("api_key:       %s\n", maskKey(cfg.APIKey))
			cmd.Printf("default_model: %s\n", cfg.DefaultModel)
			cmd.Printf("default_agent: %s\n", cfg.DefaultAgent)
			cmd.Printf("agents_path:   %s\n", cfg.AgentsPath)
			cmd.Printf("data_dir:      %s\n", manager.DataDir(cfg))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Keys: base_url, api_key, default_model, default_agent, agents_path, data_dir",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager()
			if err != nil {
				return err
			}
			cfg, err := manager.Load()
			if err != nil {
				return err
			}

			key, value := args[0], args[1]
			switch key {
			case "base_url":
				cfg.BaseURL = value
			case "api_key":
				cfg.APIKey = value
			case "default_model":
				cfg.DefaultModel = value
			case "default_agent":
				cfg.DefaultAgent = value
			case "agents_path":
				cfg.AgentsPath = value
			case "data_dir":
				cfg.DataDir = value
			default:
				return fmt.Errorf("unknown config key %q", key)
			}
			if err := manager.Save(cfg); err != nil {
				return err
			}
			cmd.Printf("set %s\n", key)
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager()
			if err != nil {
				return err
			}
			cmd.Println(manager.GetConfigPath())
			return nil
		},
	}
}

func maskKey(key string) string {
	if key == "" {
		return "(unset)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
