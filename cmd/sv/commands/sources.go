package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"splatvault/pkg/source/appsource"
	"splatvault/pkg/source/dirsource"
	"splatvault/pkg/source/s3source"
	"splatvault/pkg/source/tablesource"
	"splatvault/pkg/source/urlsource"
	"splatvault/pkg/types"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage configured asset sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := SV.Registry.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, r := range recs {
			marker := " "
			if r.IsDefault {
				marker = "*"
			}
			fmt.Printf("%s %-36s  %-16s  %s\n", marker, r.ID, r.Type, r.Name)
		}
		return nil
	},
}

var (
	addType   string
	addConfig string
)

var sourcesAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a new source",
	Long: `Add a new asset source. --type selects the backend kind, --json carries
the backend-specific config (credentials go into the vault separately, the
config only references them by secret id).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t := types.SourceType(addType)

		// 先解析进具体的 Config 类型，把格式错误挡在落盘之前
		var cfg any
		var err error
		switch t {
		case types.TypeLocalDir:
			cfg, err = parseConfig[dirsource.Config](addConfig)
		case types.TypeS3Bucket:
			cfg, err = parseConfig[s3source.Config](addConfig)
		case types.TypeHostedTable:
			cfg, err = parseConfig[tablesource.Config](addConfig)
		case types.TypeAppLocal:
			cfg, err = parseConfig[appsource.Config](addConfig)
		case types.TypeURLList:
			cfg, err = parseConfig[urlsource.Config](addConfig)
		default:
			return fmt.Errorf("unknown source type: %s", addType)
		}
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		rec, err := SV.Registry.Create(cmd.Context(), t, args[0], cfg)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Added source %s (%s)\n", rec.ID, rec.Type)
		return nil
	},
}

func parseConfig[T any](raw string) (T, error) {
	var cfg T
	if raw == "" {
		return cfg, nil
	}
	err := json.Unmarshal([]byte(raw), &cfg)
	return cfg, err
}

var rmRemote bool

var sourcesRmCmd = &cobra.Command{
	Use:   "rm [source-id]",
	Short: "Remove a source and its local cache",
	Long: `Remove a source from the registry, deleting its manifest and cached blobs.
Remote assets are untouched unless --delete-remote is given explicitly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := types.SourceID(args[0])
		if err := SV.RemoveSource(cmd.Context(), id, rmRemote); err != nil {
			return err
		}
		fmt.Println("✅ Source removed.")
		return nil
	},
}

var sourcesRenameCmd = &cobra.Command{
	Use:   "rename [source-id] [new-name]",
	Short: "Rename a source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return SV.Registry.Rename(cmd.Context(), types.SourceID(args[0]), args[1])
	},
}

var sourcesDefaultCmd = &cobra.Command{
	Use:   "default [source-id]",
	Short: "Mark a source as the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return SV.Registry.SetDefault(cmd.Context(), types.SourceID(args[0]))
	},
}

func init() {
	sourcesAddCmd.Flags().StringVar(&addType, "type", "", "backend type (local-directory|s3-bucket|hosted-table|app-local|url-list)")
	sourcesAddCmd.Flags().StringVar(&addConfig, "json", "", "backend config as JSON")
	sourcesAddCmd.MarkFlagRequired("type")

	sourcesRmCmd.Flags().BoolVar(&rmRemote, "delete-remote", false, "also delete all remote assets (irreversible)")

	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(sourcesRmCmd)
	sourcesCmd.AddCommand(sourcesRenameCmd)
	sourcesCmd.AddCommand(sourcesDefaultCmd)
}
