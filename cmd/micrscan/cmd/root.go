package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"micrscan/internal/config"
	"micrscan/internal/version"
)

var (
	cfgFile string
	cfg     config.Config
	log     zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:     "micrscan",
	Short:   "Locate and translate the MICR line on a check image",
	Version: version.Version,
	Long: `micrscan finds the MICR line on a check image, deskews and binarizes
it, segments its characters, and translates them into routing, account,
and check numbers.

Examples:
  micrscan scan check.png
  micrscan preprocess check.tif
  micrscan serve --addr :8080`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(preprocessCmd)
	rootCmd.AddCommand(serveCmd)
}
