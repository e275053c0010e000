package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
	"github.com/banshee-data/annotation.catalog/internal/split"
)

// CatalogConfig holds the tunables of a catalog run. Every field is
// optional; the Get* methods return the documented default when a field is
// absent, so partial configs are safe.
type CatalogConfig struct {
	// Filtering
	AreaFilterThreshold *float64 `json:"area_filter_threshold,omitempty"`

	// Composite id layout
	DigitsForFile   *int `json:"digits_for_file,omitempty"`
	DigitsForFrame  *int `json:"digits_for_frame,omitempty"`
	DigitsForObject *int `json:"digits_for_object,omitempty"`

	// Frame images
	FrameNameDigits *int     `json:"frame_name_digits,omitempty"`
	FrameRate       *float64 `json:"frame_rate,omitempty"`
	FFProbePath     *string  `json:"ffprobe_path,omitempty"`
	FFmpegPath      *string  `json:"ffmpeg_path,omitempty"`

	// Dataset split
	TrainFraction      *float64 `json:"train_fraction,omitempty"`
	ValidationFraction *float64 `json:"validation_fraction,omitempty"`
	SplitSeed          *uint64  `json:"split_seed,omitempty"` // 0 seeds from the clock

	// Output
	LogsDir    *string `json:"logs_dir,omitempty"`
	LedgerPath *string `json:"ledger_path,omitempty"` // empty disables the run ledger
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// DefaultCatalogConfig returns a config with every field populated.
func DefaultCatalogConfig() *CatalogConfig {
	return &CatalogConfig{
		AreaFilterThreshold: ptrFloat64(100),
		DigitsForFile:       ptrInt(3),
		DigitsForFrame:      ptrInt(5),
		DigitsForObject:     ptrInt(3),
		FrameNameDigits:     ptrInt(5),
		FrameRate:           ptrFloat64(catalog.FramesPerSecond),
		FFProbePath:         ptrString("ffprobe"),
		FFmpegPath:          ptrString("ffmpeg"),
		TrainFraction:       ptrFloat64(0.7),
		ValidationFraction:  ptrFloat64(0.15),
		SplitSeed:           ptrUint64(0),
		LogsDir:             ptrString("logs"),
		LedgerPath:          ptrString(""),
	}
}

// LoadCatalogConfig loads a CatalogConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadCatalogConfig(path string) (*CatalogConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &CatalogConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *CatalogConfig) Validate() error {
	if c.AreaFilterThreshold != nil && *c.AreaFilterThreshold < 0 {
		return fmt.Errorf("area_filter_threshold must be non-negative, got %g", *c.AreaFilterThreshold)
	}
	if err := c.IDLayout().Validate(); err != nil {
		return err
	}
	if n := c.GetFrameNameDigits(); n < 1 {
		return fmt.Errorf("frame_name_digits must be positive, got %d", n)
	}
	if r := c.GetFrameRate(); r <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %g", r)
	}
	if err := c.Fractions().Validate(); err != nil {
		return err
	}
	return nil
}

// MarshalIndent returns the effective configuration, defaults filled in.
// It is stored with every ledger run.
func (c *CatalogConfig) MarshalIndent() ([]byte, error) {
	eff := &CatalogConfig{
		AreaFilterThreshold: ptrFloat64(c.GetAreaFilterThreshold()),
		DigitsForFile:       ptrInt(c.IDLayout().FileDigits),
		DigitsForFrame:      ptrInt(c.IDLayout().FrameDigits),
		DigitsForObject:     ptrInt(c.IDLayout().ObjectDigits),
		FrameNameDigits:     ptrInt(c.GetFrameNameDigits()),
		FrameRate:           ptrFloat64(c.GetFrameRate()),
		FFProbePath:         ptrString(c.GetFFProbePath()),
		FFmpegPath:          ptrString(c.GetFFmpegPath()),
		TrainFraction:       ptrFloat64(c.Fractions().Train),
		ValidationFraction:  ptrFloat64(c.Fractions().Validation),
		SplitSeed:           ptrUint64(c.GetSplitSeed()),
		LogsDir:             ptrString(c.GetLogsDir()),
		LedgerPath:          ptrString(c.GetLedgerPath()),
	}
	return json.MarshalIndent(eff, "", "  ")
}

// GetAreaFilterThreshold returns the minimum rectangle area in square pixels.
func (c *CatalogConfig) GetAreaFilterThreshold() float64 {
	if c.AreaFilterThreshold == nil {
		return 100
	}
	return *c.AreaFilterThreshold
}

// IDLayout returns the composite id layout, 3/5/3 by default.
func (c *CatalogConfig) IDLayout() catalog.IDLayout {
	l := catalog.DefaultIDLayout()
	if c.DigitsForFile != nil {
		l.FileDigits = *c.DigitsForFile
	}
	if c.DigitsForFrame != nil {
		l.FrameDigits = *c.DigitsForFrame
	}
	if c.DigitsForObject != nil {
		l.ObjectDigits = *c.DigitsForObject
	}
	return l
}

// GetFrameNameDigits returns the zero padding of frame file names.
func (c *CatalogConfig) GetFrameNameDigits() int {
	if c.FrameNameDigits == nil {
		return 5
	}
	return *c.FrameNameDigits
}

// GetFrameRate returns the extraction rate handed to ffmpeg.
func (c *CatalogConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return catalog.FramesPerSecond
	}
	return *c.FrameRate
}

// GetFFProbePath returns the ffprobe binary.
func (c *CatalogConfig) GetFFProbePath() string {
	if c.FFProbePath == nil || *c.FFProbePath == "" {
		return "ffprobe"
	}
	return *c.FFProbePath
}

// GetFFmpegPath returns the ffmpeg binary.
func (c *CatalogConfig) GetFFmpegPath() string {
	if c.FFmpegPath == nil || *c.FFmpegPath == "" {
		return "ffmpeg"
	}
	return *c.FFmpegPath
}

// Fractions returns the train and validation shares of the video split.
func (c *CatalogConfig) Fractions() split.Fractions {
	f := split.Fractions{Train: 0.7, Validation: 0.15}
	if c.TrainFraction != nil {
		f.Train = *c.TrainFraction
	}
	if c.ValidationFraction != nil {
		f.Validation = *c.ValidationFraction
	}
	return f
}

// GetSplitSeed returns the shuffle seed; 0 means seed from the clock.
func (c *CatalogConfig) GetSplitSeed() uint64 {
	if c.SplitSeed == nil {
		return 0
	}
	return *c.SplitSeed
}

// GetLogsDir returns the directory failure logs are written to.
func (c *CatalogConfig) GetLogsDir() string {
	if c.LogsDir == nil || *c.LogsDir == "" {
		return "logs"
	}
	return *c.LogsDir
}

// GetLedgerPath returns the SQLite run ledger path, or "" when disabled.
func (c *CatalogConfig) GetLedgerPath() string {
	if c.LedgerPath == nil {
		return ""
	}
	return *c.LedgerPath
}

// AssemblyOptions returns the catalog assembler options.
func (c *CatalogConfig) AssemblyOptions() catalog.Options {
	return catalog.Options{
		Layout:          c.IDLayout(),
		AreaThreshold:   c.GetAreaFilterThreshold(),
		FrameNameDigits: c.GetFrameNameDigits(),
	}
}
