package main

import (
	"fmt"

	"github.com/richardjlyon/ayda/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		// The file may not exist yet.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := c.configPath()
			if err != nil {
				return err
			}
			cmd.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a config file with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := c.configPath()
			if err != nil {
				return err
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			cmd.Printf("%s %s\n", green("Wrote"), path)
			cmd.Printf("Set zotero.user_id, zotero.api_key, zotero.library_root and anythingllm.api_key\n")
			cmd.Printf("there, or export %s and friends.\n", config.EnvKey("anythingllm.api_key"))
			return nil
		},
	})

	return cmd
}

func (c *cli) configPath() (string, error) {
	if c.cfgFile != "" {
		return c.cfgFile, nil
	}
	path, err := config.DefaultPath()
	if err != nil {
		return "", fmt.Errorf("config path: %w", err)
	}
	return path, nil
}
