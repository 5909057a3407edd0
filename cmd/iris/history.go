package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse archived chat threads",
	}
	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistorySearchCmd())
	cmd.AddCommand(newHistoryShowCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived threads, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepareRuntimeEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			records, err := env.Archive.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, rec := range records {
				when := time.Unix(rec.CreatedAt, 0).Format("2006-01-02 15:04")
				cmd.Printf("%s  %-8s  %s  %s\n", when, rec.Mode, rec.ThreadID, truncate(rec.Prompt, 60))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum threads to list")
	return cmd
}

func newHistorySearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over archived transcripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepareRuntimeEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			results, err := env.Archive.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				cmd.Println("no matches")
				return nil
			}
			for _, res := range results {
				cmd.Printf("%.3f  %s  %s\n", res.Score, res.ThreadID, truncate(res.Prompt, 60))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum results")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <thread-id>",
		Short: "Print an archived transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepareRuntimeEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			rec, err := env.Archive.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("thread:  %s\nproject: %s\nmode:    %s\nprompt:  %s\n\n%s\n",
				rec.ThreadID, rec.ProjectID, rec.Mode, rec.Prompt, rec.Transcript)
			return nil
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
