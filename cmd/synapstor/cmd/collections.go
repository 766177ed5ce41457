package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/casheiro/synapstor-go/internal/output"
)

func newCollectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Manage vector store collections",
	}

	cmd.AddCommand(newCollectionsListCmd())
	cmd.AddCommand(newCollectionsDeleteCmd())

	return cmd
}

func newCollectionsListCmd() *cobra.Command {
	var opts commonOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collections and their entry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := resolveConfig(cmd, &opts)
			if err != nil {
				return err
			}

			reg, err := buildRegistry(cfg, nil)
			if err != nil {
				return err
			}

			res, err := reg.Call(cmd.Context(), "list-collections", nil)
			if err != nil {
				return err
			}
			infos, _ := res.([]CollectionInfo)

			out := output.New(cmd.OutOrStdout())
			if len(infos) == 0 {
				out.Status("", "No collections")
				return nil
			}
			for _, info := range infos {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-32s %d entries\n", info.Name, info.Entries)
			}
			return nil
		},
	}

	addConnectionFlags(cmd, &opts)

	return cmd
}

func newCollectionsDeleteCmd() *cobra.Command {
	var opts commonOptions

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Drop a collection and its keyword sidecar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := resolveConfig(cmd, &opts)
			if err != nil {
				return err
			}

			reg, err := buildRegistry(cfg, nil)
			if err != nil {
				return err
			}

			name := args[0]
			if _, err := reg.Call(cmd.Context(), "delete-collection", map[string]any{
				"collection": name,
			}); err != nil {
				return err
			}

			output.New(cmd.OutOrStdout()).Successf("Deleted collection %q", name)
			return nil
		},
	}

	addConnectionFlags(cmd, &opts)

	return cmd
}
