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

var preprocessCmd = &cobra.Command{
	Use:   "preprocess <image>",
	Short: "Run only the deskew/polarity/crop stage and report the skew angle",
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
		}

		resp, err := session.Preprocess(context.Background(), req)
		if err != nil {
			return fmt.Errorf("preprocess failed: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}
