package main

import (
	"errors"
	"strings"

	"github.com/richardjlyon/ayda/internal/config"
	"github.com/richardjlyon/ayda/pkg/anythingllm"
	"github.com/spf13/cobra"
)

func newWorkspaceCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workspace",
		Aliases: []string{"ws"},
		Short:   "Manage AnythingLLM workspaces",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd.Context(), config.NeedAnythingLLM)
			if err != nil {
				return err
			}
			defer a.Close()

			workspaces, err := a.Workspaces(cmd.Context())
			if err != nil {
				return err
			}
			if len(workspaces) == 0 {
				cmd.Println("No workspaces")
				return nil
			}
			for _, ws := range workspaces {
				cmd.Printf("%-4d %-30s %s\n", ws.ID, ws.Name, gray(ws.Slug))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd.Context(), config.NeedAnythingLLM)
			if err != nil {
				return err
			}
			defer a.Close()

			ws, err := a.CreateWorkspace(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%s %s (%s)\n", green("Created"), ws.Name, ws.Slug)
			return nil
		},
	})

	var all bool
	deleteCmd := &cobra.Command{
		Use:   "delete [name]",
		Short: "Delete a workspace and its documents",
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case all && len(args) > 0:
				return errors.New("--all takes no workspace name")
			case !all && len(args) != 1:
				return errors.New("requires a workspace name or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd.Context(), config.NeedAnythingLLM)
			if err != nil {
				return err
			}
			defer a.Close()

			if all {
				deleted, err := a.DeleteAllWorkspaces(cmd.Context())
				for _, slug := range deleted {
					cmd.Printf("%s %s\n", green("Deleted"), slug)
				}
				return err
			}
			if err := a.DeleteWorkspace(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("%s %s\n", green("Deleted"), args[0])
			return nil
		},
	}
	deleteCmd.Flags().BoolVar(&all, "all", false, "delete every workspace")
	cmd.AddCommand(deleteCmd)

	var mode string
	chatCmd := &cobra.Command{
		Use:   "chat <name> <message...>",
		Short: "Ask a workspace a question",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatMode, err := anythingllm.ParseChatMode(mode)
			if err != nil {
				return err
			}
			a, err := c.app(cmd.Context(), config.NeedAnythingLLM)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.Chat(cmd.Context(), args[0], strings.Join(args[1:], " "), chatMode)
			if err != nil {
				return err
			}
			cmd.Println(resp.TextResponse)
			if len(resp.Sources) > 0 {
				cmd.Println()
				cmd.Println(bold("Sources:"))
				for _, s := range resp.Sources {
					cmd.Printf("  - %s\n", s.Title)
				}
			}
			return nil
		},
	}
	chatCmd.Flags().StringVar(&mode, "mode", string(anythingllm.ChatModeQuery), "chat or query")
	cmd.AddCommand(chatCmd)

	return cmd
}

func newDocumentsCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Inspect the AnythingLLM document store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List uploaded documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd.Context(), config.NeedAnythingLLM)
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.Documents(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range docs {
				cmd.Printf("%s %s\n", d.Location, gray(d.Title))
			}
			cmd.Printf("Total: %d documents\n", len(docs))
			return nil
		},
	})
	return cmd
}
