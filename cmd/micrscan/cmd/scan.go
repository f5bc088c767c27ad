package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"micrscan/internal/micrscan"
	"micrscan/internal/reference"
)

var (
	scanDebug       []string
	scanTranslators []string
)

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Run the full pipeline and print the translated MICR fields as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}

		lib, err := reference.Load(cfg.Reference.ImagePath, cfg.Reference.DescriptorPath)
		if err != nil {
			return fmt.Errorf("loading reference glyphs: %w", err)
		}

		session, err := micrscan.New(cfg, lib, log)
		if err != nil {
			return fmt.Errorf("starting session: %w", err)
		}
		defer session.Close()

		req := micrscan.Request{
			ID: filepath.Base(args[0]),
			Image: micrscan.ImageInput{
				Format: strings.TrimPrefix(filepath.Ext(args[0]), "."),
				Buffer: buf,
			},
			Debug:       scanDebug,
			Translators: scanTranslators,
		}

		resp, err := session.Scan(context.Background(), req)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

func init() {
	scanCmd.Flags().StringSliceVar(&scanDebug, "debug", nil, "debug exports to include: contours, line, chars")
	scanCmd.Flags().StringSliceVar(&scanTranslators, "translators", nil, "translator backends to run (default: all enabled)")
}
