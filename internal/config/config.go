// Package config loads the MICR pipeline's configuration via viper, binding
// every key to an OCR_-prefixed environment variable and a YAML config file
// with nested sections.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full set of tunables named in the external interface table,
// plus per-stage structural knobs. Some constants stay hardcoded in the stage
// packages: the anchor-derived line thresholds, the morphology kernel, the
// polarity sample grid, the line bounding-rect padding and the overlap
// probe-width factor.
type Config struct {
	OverlapCorrection bool `mapstructure:"overlap_correction"`
	OverlapPadding    int  `mapstructure:"overlap_padding"`

	MaxCharHeight int `mapstructure:"max_char_height"`
	MaxCharWidth  int `mapstructure:"max_char_width"`
	MaxCharArea   int `mapstructure:"max_char_area"`

	MinContourArea   int `mapstructure:"min_contour_area"`
	MinContourHeight int `mapstructure:"min_contour_height"`
	MinContourWidth  int `mapstructure:"min_contour_width"`

	MaxSpaceBetweenCharsOfWord int `mapstructure:"max_space_between_chars_of_word"`
	MaxSpaceBetweenWords       int `mapstructure:"max_space_between_words"`

	MaxTranslatorChoices int    `mapstructure:"max_translator_choices"`
	LogLevel             string `mapstructure:"log_level"`

	SlowRequestMS              int    `mapstructure:"slow_request_ms"`
	HungRequestMS              int    `mapstructure:"hung_request_ms"`
	SlowOrHungRequestLogLevel  string `mapstructure:"slow_or_hung_request_log_level"`

	Deskew     DeskewConfig     `mapstructure:"deskew"`
	Binarizer  BinarizerConfig  `mapstructure:"binarizer"`
	Anchor     AnchorConfig     `mapstructure:"anchor"`
	Overlap    OverlapConfig    `mapstructure:"overlap"`
	Reference  ReferenceConfig  `mapstructure:"reference"`
	Server     ServerConfig     `mapstructure:"server"`
	Translators TranslatorsConfig `mapstructure:"translators"`
}

// DeskewConfig holds the deskew-candidate-detection structural knobs.
type DeskewConfig struct {
	BlurKernel          int     `mapstructure:"blur_kernel"`
	DilateKernelWidth   int     `mapstructure:"dilate_kernel_width"`
	MinCandidateWidth   int     `mapstructure:"min_candidate_width"`
	MinCandidateHeight  int     `mapstructure:"min_candidate_height"`
	MaxCandidateHeight  int     `mapstructure:"max_candidate_height"`
	BottomBandBeginFrac float64 `mapstructure:"bottom_band_begin_frac"`
	BottomBandEndFrac   float64 `mapstructure:"bottom_band_end_frac"`
}

// BinarizerConfig holds the adaptive-threshold binarization parameters.
type BinarizerConfig struct {
	BlurKernel int `mapstructure:"blur_kernel"`
	BlockSize  int `mapstructure:"block_size"`
	C          int `mapstructure:"c"`
}

// AnchorConfig holds the anchor-glyph template-match parameters.
type AnchorConfig struct {
	TileSize  int     `mapstructure:"tile_size"`
	StopScore float64 `mapstructure:"stop_score"`
}

// OverlapConfig holds the curve-following overlap corrector's tunables.
type OverlapConfig struct {
	MaxDelta          float64 `mapstructure:"max_delta"`
	MaxStepsBack      int     `mapstructure:"max_steps_back"`
	GoodSmallDelta    float64 `mapstructure:"good_small_delta"`
	ProbeStartSteps   int     `mapstructure:"probe_start_steps"`
	MaxForwardProbes  int     `mapstructure:"max_forward_probes"`
	MaxProjectionIter int     `mapstructure:"max_projection_iterations"`
	MaxThinningIter   int     `mapstructure:"max_thinning_iterations"`
}

// ReferenceConfig points at the reference glyph assets.
type ReferenceConfig struct {
	ImagePath      string `mapstructure:"image_path"`
	DescriptorPath string `mapstructure:"descriptor_path"`
}

// ServerConfig configures the HTTP facade.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MaxRequestSize int64  `mapstructure:"max_request_size"`
}

// TranslatorsConfig lists which translator backends are enabled by default.
type TranslatorsConfig struct {
	Enabled []string `mapstructure:"enabled"`
}

// Default returns the configuration with every documented default applied.
func Default() Config {
	return Config{
		OverlapCorrection: true,
		OverlapPadding:    5,

		MaxCharHeight: 30,
		MaxCharWidth:  28,
		MaxCharArea:   30 * 28,

		MinContourArea:   20,
		MinContourHeight: 7,
		MinContourWidth:  3,

		MaxSpaceBetweenCharsOfWord: 15,
		MaxSpaceBetweenWords:       200,

		MaxTranslatorChoices: 3,
		LogLevel:             "info",

		SlowRequestMS:             0,
		HungRequestMS:             0,
		SlowOrHungRequestLogLevel: "debug",

		Deskew: DeskewConfig{
			BlurKernel:          7,
			DilateKernelWidth:   25,
			MinCandidateWidth:   120,
			MinCandidateHeight:  10,
			MaxCandidateHeight:  100,
			BottomBandBeginFrac: 0.6,
			BottomBandEndFrac:   1.0,
		},
		Binarizer: BinarizerConfig{
			BlurKernel: 3,
			BlockSize:  19,
			C:          1,
		},
		Anchor: AnchorConfig{
			TileSize:  36,
			StopScore: 90,
		},
		Overlap: OverlapConfig{
			MaxDelta:          20,
			MaxStepsBack:      4,
			GoodSmallDelta:    15,
			ProbeStartSteps:   2,
			MaxForwardProbes:  20,
			MaxProjectionIter: 10,
			MaxThinningIter:   100,
		},
		Reference: ReferenceConfig{
			ImagePath:      "assets/reference_glyphs.png",
			DescriptorPath: "assets/reference_glyphs.json",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxRequestSize: 16 << 20,
		},
		Translators: TranslatorsConfig{
			Enabled: []string{"template_match", "third_party_ocr"},
		},
	}
}

// Load builds a viper instance seeded with the defaults, optionally reads a
// config file, and binds OCR_-prefixed environment variables on top.
func Load(configFile string) (Config, error) {
	v := viper.New()
	def := Default()

	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix("OCR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, def)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("overlap_correction", def.OverlapCorrection)
	v.SetDefault("overlap_padding", def.OverlapPadding)
	v.SetDefault("max_char_height", def.MaxCharHeight)
	v.SetDefault("max_char_width", def.MaxCharWidth)
	v.SetDefault("max_char_area", def.MaxCharArea)
	v.SetDefault("min_contour_area", def.MinContourArea)
	v.SetDefault("min_contour_height", def.MinContourHeight)
	v.SetDefault("min_contour_width", def.MinContourWidth)
	v.SetDefault("max_space_between_chars_of_word", def.MaxSpaceBetweenCharsOfWord)
	v.SetDefault("max_space_between_words", def.MaxSpaceBetweenWords)
	v.SetDefault("max_translator_choices", def.MaxTranslatorChoices)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("slow_request_ms", def.SlowRequestMS)
	v.SetDefault("hung_request_ms", def.HungRequestMS)
	v.SetDefault("slow_or_hung_request_log_level", def.SlowOrHungRequestLogLevel)

	v.SetDefault("deskew.blur_kernel", def.Deskew.BlurKernel)
	v.SetDefault("deskew.dilate_kernel_width", def.Deskew.DilateKernelWidth)
	v.SetDefault("deskew.min_candidate_width", def.Deskew.MinCandidateWidth)
	v.SetDefault("deskew.min_candidate_height", def.Deskew.MinCandidateHeight)
	v.SetDefault("deskew.max_candidate_height", def.Deskew.MaxCandidateHeight)
	v.SetDefault("deskew.bottom_band_begin_frac", def.Deskew.BottomBandBeginFrac)
	v.SetDefault("deskew.bottom_band_end_frac", def.Deskew.BottomBandEndFrac)

	v.SetDefault("binarizer.blur_kernel", def.Binarizer.BlurKernel)
	v.SetDefault("binarizer.block_size", def.Binarizer.BlockSize)
	v.SetDefault("binarizer.c", def.Binarizer.C)

	v.SetDefault("anchor.tile_size", def.Anchor.TileSize)
	v.SetDefault("anchor.stop_score", def.Anchor.StopScore)

	v.SetDefault("overlap.max_delta", def.Overlap.MaxDelta)
	v.SetDefault("overlap.max_steps_back", def.Overlap.MaxStepsBack)
	v.SetDefault("overlap.good_small_delta", def.Overlap.GoodSmallDelta)
	v.SetDefault("overlap.probe_start_steps", def.Overlap.ProbeStartSteps)
	v.SetDefault("overlap.max_forward_probes", def.Overlap.MaxForwardProbes)
	v.SetDefault("overlap.max_projection_iterations", def.Overlap.MaxProjectionIter)
	v.SetDefault("overlap.max_thinning_iterations", def.Overlap.MaxThinningIter)

	v.SetDefault("reference.image_path", def.Reference.ImagePath)
	v.SetDefault("reference.descriptor_path", def.Reference.DescriptorPath)

	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("server.max_request_size", def.Server.MaxRequestSize)

	v.SetDefault("translators.enabled", def.Translators.Enabled)
}
