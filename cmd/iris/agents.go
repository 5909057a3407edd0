package main

import (
	"github.com/spf13/cobra"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage agent personalities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepareRuntimeEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			list := env.Agents.List()
			if len(list) == 0 {
				cmd.Println("no agents configured")
				return nil
			}
			for _, a := range list {
				marker := " "
				if a.IsDefault {
					marker = "*"
				}
				cmd.Printf("%s %-16s %-20s %s\n", marker, a.ID, a.Name, a.Description)
			}
			return nil
		},
	})
	return cmd
}
