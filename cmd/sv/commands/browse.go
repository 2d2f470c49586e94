package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"splatvault/pkg/source"
	"splatvault/pkg/source/dirsource"
	"splatvault/pkg/types"
)

var sourceFlag string

// resolveSource: --source 指定的优先，否则用默认源
func resolveSource(ctx context.Context) (source.Source, error) {
	if sourceFlag != "" {
		return SV.Source(ctx, types.SourceID(sourceFlag))
	}
	return SV.DefaultSource(ctx)
}

var grantPath string

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a source (grant directory access with --grant)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, err := resolveSource(ctx)
		if err != nil {
			return err
		}

		// 本地目录源：--grant 就是"用户手势"
		if grantPath != "" {
			dir, ok := src.(*dirsource.Adapter)
			if !ok {
				return fmt.Errorf("--grant only applies to local-directory sources")
			}
			if err := dir.Grant(grantPath); err != nil {
				return err
			}
			// 授权路径可能变了，回写配置
			if cfg, err := dir.MarshalConfig(); err == nil {
				SV.Registry.UpdateConfig(ctx, src.ID(), cfg)
			}
		}

		res := SV.Engine.Guard().Connect(ctx, src, grantPath != "")
		switch {
		case res.Success:
			SV.Registry.Touch(ctx, src.ID())
			fmt.Println("✅ Connected.")
		case res.NeedsPermission:
			fmt.Println("⚠️  Needs permission. Re-grant access with: sv connect --grant <path>")
		case res.Offline:
			fmt.Println("⚠️  Offline. Cached assets remain browsable via 'sv ls'.")
		default:
			fmt.Fprintln(os.Stderr, "connection error:", res.Err)
		}
		return nil
	},
}

var lsCached bool

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List visible assets (serves the cached manifest when offline)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, err := resolveSource(ctx)
		if err != nil {
			return err
		}

		view, err := SV.Engine.ListVisible(ctx, src)
		if err != nil {
			return err
		}

		if view.State != types.StateConnected {
			fmt.Printf("⚠️  %s\n", view.State)
		}

		cached := map[string]bool{}
		if names, err := SV.Engine.CachedNames(ctx, src.ID()); err == nil {
			for _, n := range names {
				cached[n] = true
			}
		}

		for _, a := range view.Assets {
			if lsCached && !cached[a.Name] {
				continue
			}
			mark := " "
			if cached[a.Name] {
				mark = "c"
			}
			fmt.Printf("%s %10d  %s\n", mark, a.Size, a.Name)
		}
		return nil
	},
}

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Reconcile the cached manifest against the live remote listing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, err := resolveSource(ctx)
		if err != nil {
			return err
		}

		res := SV.Engine.Guard().Connect(ctx, src, false)
		if !res.Success {
			return fmt.Errorf("source unavailable: %+v", res)
		}

		result, err := SV.Engine.Rescan(ctx, src, true)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Rescan done: %d added, %d gone.\n", len(result.Added), result.RemovedCount)
		return nil
	},
}

var fetchOut string

var fetchCmd = &cobra.Command{
	Use:   "fetch [asset-name]",
	Short: "Fetch asset bytes into the local cache (or to a file with -o)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, err := resolveSource(ctx)
		if err != nil {
			return err
		}

		name := args[0]

		// 离线时先试缓存
		if data, err := SV.Engine.CachedBlob(ctx, src.ID(), name); err == nil {
			return writeFetched(name, data)
		}

		res := SV.Engine.Guard().Connect(ctx, src, false)
		if !res.Success {
			return fmt.Errorf("source unavailable and asset not cached: %+v", res)
		}

		assets, err := SV.Engine.Guard().List(ctx, src)
		if err != nil {
			return err
		}
		for _, a := range assets {
			if a.Name != name {
				continue
			}
			if err := SV.Engine.CacheAsset(ctx, src, a); err != nil {
				return err
			}
			data, err := SV.Engine.CachedBlob(ctx, src.ID(), name)
			if err != nil {
				return err
			}
			return writeFetched(name, data)
		}
		return fmt.Errorf("%w: %s", types.ErrNotFound, name)
	},
}

func writeFetched(name string, data []byte) error {
	if fetchOut == "" {
		fmt.Printf("✅ Cached %s (%d bytes).\n", name, len(data))
		return nil
	}
	if err := os.WriteFile(fetchOut, data, 0644); err != nil {
		return err
	}
	fmt.Printf("✅ Wrote %s (%d bytes).\n", fetchOut, len(data))
	return nil
}

var hideCmd = &cobra.Command{
	Use:   "hide [asset-name]",
	Short: "Hide an asset locally (tombstone; the remote copy is untouched)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := resolveSource(cmd.Context())
		if err != nil {
			return err
		}
		return SV.Engine.Remove(src.ID(), args[0])
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [asset-name]",
	Short: "Undo a local hide",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := resolveSource(cmd.Context())
		if err != nil {
			return err
		}
		return SV.Engine.Restore(src.ID(), args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{connectCmd, lsCmd, rescanCmd, fetchCmd, hideCmd, restoreCmd} {
		c.Flags().StringVar(&sourceFlag, "source", "", "source id (default: the default source)")
	}
	connectCmd.Flags().StringVar(&grantPath, "grant", "", "grant access to a local directory (user gesture)")
	lsCmd.Flags().BoolVar(&lsCached, "cached", false, "only show assets with cached bytes")
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "write bytes to a file instead of just caching")
}
