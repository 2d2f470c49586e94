package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"splatvault/pkg/app"
	"splatvault/pkg/config"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	SV *app.App
)

var rootCmd = &cobra.Command{
	Use:   "sv",
	Short: "SplatVault: 3D splat asset browser with pluggable storage backends",
	// PersistentPreRunE 在所有子命令之前统一组装 App
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		SV, err = app.NewApp(nil)
		if err != nil {
			return fmt.Errorf("failed to initialize splatvault: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if SV != nil {
			SV.Close()
		}
	},
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sv/config.yaml)")

	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(rescanCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(hideCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(vaultCmd)
	rootCmd.AddCommand(cacheCmd)
}

func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
}
