package main

import (
	"github.com/richardjlyon/ayda/internal/config"
	"github.com/spf13/cobra"
)

func newZoteroCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zotero",
		Short: "Inspect the Zotero library",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "collections",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd.Context(), config.NeedZotero)
			if err != nil {
				return err
			}
			defer a.Close()

			collections, err := a.Collections(cmd.Context())
			if err != nil {
				return err
			}
			for _, coll := range collections {
				name := coll.Name
				if coll.ParentKey != "" {
					name += gray(" (in " + coll.ParentKey + ")")
				}
				cmd.Printf("%s %s\n", gray(coll.Key), name)
			}
			cmd.Printf("Total: %d collections\n", len(collections))
			return nil
		},
	})
	return cmd
}
