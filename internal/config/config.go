// Package config loads the process-level YAML configuration document
// (distinct from the user-facing /config/editor document of §6, see
// internal/configeditor) named by GENFORGE_CONFIG_PATH.
package config

import (
	"os"

	"gopkg.in/yaml.v2"

	"github.com/amd-agi/genforge/internal/apierrors"
	"github.com/amd-agi/genforge/internal/logger/conf"
)

const (
	envConfigPath = "GENFORGE_CONFIG_PATH"
	envWorkerBin  = "GENFORGE_WORKER_BIN"

	defaultConfigPath = "config.yaml"
)

// GpuEntry is one row of the GPU configuration file (spec §6).
type GpuEntry struct {
	Device int    `yaml:"device" json:"device"`
	Name   string `yaml:"name" json:"name"`
	Weight int    `yaml:"weight" json:"weight"`
}

// GpuTableConfig is the GPU configuration file shape from spec §6.
type GpuTableConfig struct {
	Enabled     bool       `yaml:"enabled" json:"enabled"`
	Distribute  *bool      `yaml:"distribute" json:"distribute"`
	Gpus        []GpuEntry `yaml:"gpus" json:"gpus"`
}

// DistributeEnabled returns Distribute with its documented default (true).
func (g GpuTableConfig) DistributeEnabled() bool {
	if g.Distribute == nil {
		return true
	}
	return *g.Distribute
}

// CatalogConfig points at the filesystem directories the Catalog reader (§4.G)
// enumerates.
type CatalogConfig struct {
	CheckpointsDir string `yaml:"checkpointsDir" json:"checkpointsDir"`
	LorasDir       string `yaml:"lorasDir" json:"lorasDir"`
	VaesDir        string `yaml:"vaesDir" json:"vaesDir"`
	StylesDir      string `yaml:"stylesDir" json:"stylesDir"`
	PresetsDir     string `yaml:"presetsDir" json:"presetsDir"`
}

// ConfigEditorSpec locates the /config/editor document and its companion
// JSON Schema (§4.M).
type ConfigEditorSpec struct {
	DocumentPath string `yaml:"documentPath" json:"documentPath"`
	SchemaPath   string `yaml:"schemaPath" json:"schemaPath"`
}

// Config is the top-level process configuration document (§3 ProcessConfig).
type Config struct {
	HttpPort     int               `yaml:"httpPort" json:"httpPort"`
	ImagesDir    string            `yaml:"imagesDir" json:"imagesDir"`
	WorkerBinary string            `yaml:"workerBinary" json:"workerBinary"`
	Gpu          GpuTableConfig    `yaml:"gpu" json:"gpu"`
	Catalog      CatalogConfig     `yaml:"catalog" json:"catalog"`
	ConfigEditor ConfigEditorSpec  `yaml:"configEditor" json:"configEditor"`
	Log          *conf.LogConfig   `yaml:"log" json:"log"`
}

// Load reads and parses the process configuration from GENFORGE_CONFIG_PATH
// (default "config.yaml"), applying typed defaults for anything absent.
func Load() (*Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = defaultConfigPath
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apierrors.New().
			WithCode(apierrors.InternalError).
			WithMessagef("open config file %q", path).
			WithError(err)
	}
	defer f.Close()

	cfg := &Config{}
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, apierrors.New().
			WithCode(apierrors.InternalError).
			WithMessagef("parse config file %q", path).
			WithError(err)
	}

	applyDefaults(cfg)

	if bin := os.Getenv(envWorkerBin); bin != "" {
		cfg.WorkerBinary = bin
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HttpPort == 0 {
		cfg.HttpPort = 8080
	}
	if cfg.ImagesDir == "" {
		cfg.ImagesDir = "outputs"
	}
	if cfg.Log == nil {
		cfg.Log = conf.DefaultConfig()
	}
	if cfg.ConfigEditor.DocumentPath == "" {
		cfg.ConfigEditor.DocumentPath = "config_editor.json"
	}
	if cfg.ConfigEditor.SchemaPath == "" {
		cfg.ConfigEditor.SchemaPath = "config_editor.schema.json"
	}
}
