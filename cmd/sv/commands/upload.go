package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"splatvault/pkg/source"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [files...]",
	Short: "Upload or import a batch of asset files",
	Long: `Route a batch of files to the source's write path: remote upload where the
backend supports it, local import otherwise. A read-only source rejects the
batch before any network traffic. Image batches are refused here -- they need
the external conversion service.`,
	Args: cobra.MinimumNArgs(1),
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

		var files []source.File
		for _, p := range args {
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			files = append(files, source.File{Name: filepath.Base(p), Data: data})
		}

		result, err := SV.Importer.Upload(ctx, src, files)
		if err != nil {
			return err
		}

		switch {
		case result.Queued:
			fmt.Printf("⚠️  Source has no write path; %d files held in the session queue.\n", len(files))
		case result.Partial != nil:
			fmt.Printf("⚠️  Partial success: %d uploaded, %d failed.\n",
				len(result.Partial.Succeeded), len(result.Partial.Failed))
			for _, f := range result.Partial.Failed {
				fmt.Printf("   failed: %s (%v)\n", f.Name, f.Err)
			}
		default:
			fmt.Printf("✅ Uploaded %d assets.\n", len(result.Uploaded))
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVar(&sourceFlag, "source", "", "source id (default: the default source)")
}
