// Package config loads and holds all de-identifier configuration.
// Settings start from built-in defaults, are overridden by an optional
// config file (YAML or TOML, picked by extension), then by DEID_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"document-deidentifier/internal/deid"
)

// Detector names.
const (
	DetectorRegex    = "regex"
	DetectorPresidio = "presidio"
)

// ColorConfig assigns a highlight color to a category key.
type ColorConfig struct {
	Key string `yaml:"key" toml:"key" json:"key"`
	Hex string `yaml:"hex" toml:"hex" json:"hex"`
}

// Config holds the full configuration.
type Config struct {
	Entities         []string `yaml:"entities" toml:"entities" json:"entities"`
	Detector         string   `yaml:"detector" toml:"detector" json:"detector"`
	RecognizerFile   string   `yaml:"recognizerFile" toml:"recognizerFile" json:"recognizerFile"`
	PresidioEndpoint string   `yaml:"presidioEndpoint" toml:"presidioEndpoint" json:"presidioEndpoint"`
	Language         string   `yaml:"language" toml:"language" json:"language"`
	MinScore         float64  `yaml:"minScore" toml:"minScore" json:"minScore"`
	StrictSpans      bool     `yaml:"strictSpans" toml:"strictSpans" json:"strictSpans"`
	GeneratorSeed    uint64   `yaml:"generatorSeed" toml:"generatorSeed" json:"generatorSeed"`
	// DetectionCacheSize bounds the detection result cache; 0 disables it.
	DetectionCacheSize int    `yaml:"detectionCacheSize" toml:"detectionCacheSize" json:"detectionCacheSize"`
	LogLevel           string `yaml:"logLevel" toml:"logLevel" json:"logLevel"`

	MapStorePath string `yaml:"mapStorePath" toml:"mapStorePath" json:"mapStorePath"`

	BindAddress  string `yaml:"bindAddress" toml:"bindAddress" json:"bindAddress"`
	APIPort      int    `yaml:"apiPort" toml:"apiPort" json:"apiPort"`
	APIToken     string `yaml:"apiToken" toml:"apiToken" json:"-"`
	MaxBodyBytes int64  `yaml:"maxBodyBytes" toml:"maxBodyBytes" json:"maxBodyBytes"`

	HighlightOpacity float64       `yaml:"highlightOpacity" toml:"highlightOpacity" json:"highlightOpacity"`
	Colors           []ColorConfig `yaml:"colors" toml:"colors" json:"colors"`

	// Source is the config file that was applied, if any.
	Source string `yaml:"-" toml:"-" json:"-"`
}

// Load returns defaults overridden by the file at path (if it exists) and by
// the environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := loadEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Entities:           append([]string(nil), deid.DefaultEntities...),
		Detector:           DetectorRegex,
		PresidioEndpoint:   "http://localhost:5002",
		Language:           "en",
		MinScore:           0.5,
		DetectionCacheSize: 1024,
		LogLevel:           "info",
		BindAddress:        "127.0.0.1",
		APIPort:            8090,
		MaxBodyBytes:       10 << 20,
		HighlightOpacity:   0.3,
		Colors: []ColorConfig{
			{Key: "PERSON", Hex: "#ff0000"},
			{Key: "EMAIL", Hex: "#0080ff"},
			{Key: "PHONE", Hex: "#00cc00"},
			{Key: "SSN", Hex: "#ff00ff"},
			{Key: "CREDIT", Hex: "#ffa600"},
			{Key: "ADDRESS", Hex: "#800080"},
			{Key: "DATE", Hex: "#008080"},
			{Key: "COMPANY", Hex: "#996633"},
		},
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // file is optional
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("config %s: unsupported extension (want .yaml, .yml or .toml)", path)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Source = path
	return nil
}

func loadEnv(cfg *Config) error {
	if v := os.Getenv("DEID_ENTITIES"); v != "" {
		cfg.Entities = splitList(v)
	}
	if v := os.Getenv("DEID_DETECTOR"); v != "" {
		cfg.Detector = strings.ToLower(v)
	}
	if v := os.Getenv("DEID_RECOGNIZER_FILE"); v != "" {
		cfg.RecognizerFile = v
	}
	if v := os.Getenv("DEID_PRESIDIO_ENDPOINT"); v != "" {
		cfg.PresidioEndpoint = v
	}
	if v := os.Getenv("DEID_LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv("DEID_MIN_SCORE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DEID_MIN_SCORE: %w", err)
		}
		cfg.MinScore = f
	}
	if v := os.Getenv("DEID_STRICT_SPANS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEID_STRICT_SPANS: %w", err)
		}
		cfg.StrictSpans = b
	}
	if v := os.Getenv("DEID_GENERATOR_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("DEID_GENERATOR_SEED: %w", err)
		}
		cfg.GeneratorSeed = n
	}
	if v := os.Getenv("DEID_DETECTION_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEID_DETECTION_CACHE_SIZE: %w", err)
		}
		cfg.DetectionCacheSize = n
	}
	if v := os.Getenv("DEID_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DEID_MAP_STORE_PATH"); v != "" {
		cfg.MapStorePath = v
	}
	if v := os.Getenv("DEID_BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("DEID_API_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEID_API_PORT: %w", err)
		}
		cfg.APIPort = n
	}
	if v := os.Getenv("DEID_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("DEID_HIGHLIGHT_OPACITY"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DEID_HIGHLIGHT_OPACITY: %w", err)
		}
		cfg.HighlightOpacity = f
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	switch c.Detector {
	case DetectorRegex, DetectorPresidio:
	default:
		errs = append(errs, fmt.Errorf("detector %q: want %q or %q", c.Detector, DetectorRegex, DetectorPresidio))
	}
	if c.Detector == DetectorPresidio && c.PresidioEndpoint == "" {
		errs = append(errs, errors.New("presidioEndpoint is required for the presidio detector"))
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		errs = append(errs, fmt.Errorf("minScore %.2f out of range [0,1]", c.MinScore))
	}
	if c.HighlightOpacity <= 0 || c.HighlightOpacity > 1 {
		errs = append(errs, fmt.Errorf("highlightOpacity %.2f out of range (0,1]", c.HighlightOpacity))
	}
	if c.APIPort < 1 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("apiPort %d out of range", c.APIPort))
	}
	if c.DetectionCacheSize < 0 {
		errs = append(errs, fmt.Errorf("detectionCacheSize must not be negative"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("maxBodyBytes must be positive"))
	}
	if len(c.Entities) == 0 {
		errs = append(errs, errors.New("entities must not be empty"))
	}
	for i, cc := range c.Colors {
		if cc.Key == "" || cc.Hex == "" {
			errs = append(errs, fmt.Errorf("colors[%d]: key and hex are required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ColorPairs returns the color table as (key, hex) pairs in order.
func (c *Config) ColorPairs() [][2]string {
	out := make([][2]string, len(c.Colors))
	for i, cc := range c.Colors {
		out[i] = [2]string{cc.Key, cc.Hex}
	}
	return out
}

// Addr is the API listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.APIPort)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
