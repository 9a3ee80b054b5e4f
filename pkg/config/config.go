package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dravya-labs/dravya/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// APIKeyEnv is consulted when the config file leaves generation.api_key empty.
const APIKeyEnv = "GEMINI_API_KEY"

// Config holds all dravya configuration.
type Config struct {
	Listen      string              `yaml:"listen" validate:"required"`
	LogLevel    string              `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	DatasetPath string              `yaml:"dataset_path" validate:"required"`
	ModelPath   string              `yaml:"model_path" validate:"required"`
	Model       ModelConfig         `yaml:"model"`
	CORS        CORSConfig          `yaml:"cors"`
	Generation  GenerationConfig    `yaml:"generation"`
	Ledger      models.LedgerConfig `yaml:"ledger"`
	MQTT        MQTTConfig          `yaml:"mqtt"`
}

// ModelConfig controls how a missing classifier is trained.
type ModelConfig struct {
	Kind string `yaml:"kind" validate:"oneof=centroid knn"`
	K    int    `yaml:"k" validate:"gte=1"`
}

// CORSConfig lists the origins allowed to call the HTTP API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GenerationConfig configures the external generative service.
// Backend is "sdk" (default) or "rest".
type GenerationConfig struct {
	APIKey    string        `yaml:"api_key"`
	Backend   string        `yaml:"backend" validate:"oneof=sdk rest"`
	BaseURL   string        `yaml:"base_url" validate:"omitempty,url"`
	TextModel string        `yaml:"text_model" validate:"required"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
	Dedupe    bool          `yaml:"dedupe"`
	Image     ImageConfig   `yaml:"image"`
}

// ImageConfig defines the image strategy chain.
type ImageConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Models      []string `yaml:"models"`
	Methods     []string `yaml:"methods"`
	AltModels   []string `yaml:"alt_models"`
	Alternate   bool     `yaml:"alternate"`
	MIMEType    string   `yaml:"mime_type" validate:"oneof=image/png image/jpeg"`
	AspectRatio string   `yaml:"aspect_ratio"`
	Size        string   `yaml:"size"`
}

// MQTTConfig controls sensor ingestion over MQTT.
type MQTTConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Broker        string `yaml:"broker" validate:"required_if=Enabled true"`
	ClientID      string `yaml:"client_id"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	ReadingsTopic string `yaml:"readings_topic" validate:"required_if=Enabled true"`
	ResultsTopic  string `yaml:"results_topic" validate:"required_if=Enabled true"`
	QoS           byte   `yaml:"qos" validate:"lte=2"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:      ":8000",
		LogLevel:    "info",
		DatasetPath: "e-dravya.csv",
		ModelPath:   "model.json",
		Model: ModelConfig{
			Kind: "centroid",
			K:    5,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Generation: GenerationConfig{
			Backend:   "sdk",
			TextModel: "gemini-1.5-flash",
			Timeout:   60 * time.Second,
			Image: ImageConfig{
				Enabled:     true,
				Models:      []string{"gemini-2.0-flash-preview-image-generation", "gemini-2.0-flash-exp"},
				Methods:     []string{"generate_images", "predict"},
				AltModels:   []string{"imagen-3.0-generate-002"},
				Alternate:   true,
				MIMEType:    "image/png",
				AspectRatio: "1:1",
				Size:        "1K",
			},
		},
		Ledger: models.LedgerConfig{
			Enabled:       false,
			DBPath:        "dravya.db",
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			ClientID:      "dravya",
			ReadingsTopic: "dravya/sensors/+/readings",
			ResultsTopic:  "dravya/sensors/{device_id}/result",
			QoS:           1,
		},
	}
}

// LoadEnv loads KEY=VALUE pairs from the given .env files (".env" when none are
// given) without overriding variables already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a YAML config file and expands environment variables.
// An empty path yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = strings.TrimSpace(os.Getenv(APIKeyEnv))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	img := c.Generation.Image
	if img.Enabled && len(img.Models) == 0 && len(img.AltModels) == 0 {
		return errors.New("invalid config: generation.image needs at least one model")
	}
	return nil
}
