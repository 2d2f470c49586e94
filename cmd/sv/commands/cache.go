package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and prune the local blob cache",
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List cached assets for a source",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, err := resolveSource(ctx)
		if err != nil {
			return err
		}

		names, err := SV.Engine.CachedNames(ctx, src.ID())
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		fmt.Printf("%d cached assets.\n", len(names))
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop cached blobs that left the visible asset list",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, err := resolveSource(ctx)
		if err != nil {
			return err
		}

		n, err := SV.Engine.PruneCache(ctx, src.ID())
		if err != nil {
			return err
		}
		fmt.Printf("✅ Pruned %d blobs.\n", n)
		return nil
	},
}

func init() {
	cacheLsCmd.Flags().StringVar(&sourceFlag, "source", "", "source id (default: the default source)")
	cachePruneCmd.Flags().StringVar(&sourceFlag, "source", "", "source id (default: the default source)")

	cacheCmd.AddCommand(cacheLsCmd)
	cacheCmd.AddCommand(cachePruneCmd)
}
