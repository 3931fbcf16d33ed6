// Package config provides configuration management for the document engine.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"hrdocs/internal/logger"
	"hrdocs/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "hrdocs-config.json"
	// EnvFontPath overrides the Arabic font path
	EnvFontPath = "HRDOCS_FONT_PATH"
	// EnvLogoPath overrides the logo path
	EnvLogoPath = "HRDOCS_LOGO_PATH"
	// EnvArchiveBucket selects the GCS archive bucket
	EnvArchiveBucket = "HRDOCS_ARCHIVE_BUCKET"
	// EnvLogLevel overrides the log level
	EnvLogLevel = "HRDOCS_LOG_LEVEL"
	// EnvRegisterDirectory enables the register of issued documents
	EnvRegisterDirectory = "HRDOCS_REGISTER_DIR"
	// DefaultFontPath is where deployments place the Arabic font
	DefaultFontPath = "assets/fonts/Amiri-Regular.ttf"
	// DefaultLogoPath is the organization logo
	DefaultLogoPath = "assets/logo.png"
	// DefaultConcurrency bounds parallel builds in batch mode
	DefaultConcurrency = 4
	// DefaultListenAddress is used by the HTTP handler
	DefaultListenAddress = ":8088"
	// DefaultOutputDirectory receives CLI output
	DefaultOutputDirectory = "out"
)

// DefaultRequiredRunes are presentation forms the shaper emits for common words
// (alef, beh in all positions, lam initial/medial, lam-alef). A font without them
// would print boxes.
const DefaultRequiredRunes = "ﺍﺎﺏﺑﺒﺐﻟﻠﻻﻼ"

// ConfigManager manages application configuration
type ConfigManager struct {
	configPath string
	config     *types.Config
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, it uses the default path in user's home directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("failed to get user home directory", err)
			return nil, types.NewDocError(types.ErrConfig, "failed to get user home directory", err)
		}
		configPath = filepath.Join(homeDir, ".config", "hrdocs", DefaultConfigFileName)
	}

	logger.Info("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
	}, nil
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *types.Config {
	return &types.Config{
		FontPath:        DefaultFontPath,
		RequiredRunes:   DefaultRequiredRunes,
		LogoPath:        DefaultLogoPath,
		OutputDirectory: DefaultOutputDirectory,
		Concurrency:     DefaultConcurrency,
		ListenAddress:   DefaultListenAddress,
		LogLevel:        "info",
		Organization:    DefaultOrganization(),
	}
}

// DefaultOrganization is the issuing body used when the config file has none.
func DefaultOrganization() types.Organization {
	return types.Organization{
		NameLatin:       "Office National des Services Publics",
		NameArabic:      "المكتب الوطني للخدمات العمومية",
		CityLatin:       "Rabat",
		CityArabic:      "الرباط",
		SignatoryLatin:  "Le Directeur des Ressources Humaines",
		SignatoryArabic: "مدير الموارد البشرية",
		AddressLatin:    []string{"Avenue Mohammed V, Rabat", "Tél. : 05 37 00 00 00"},
		AddressArabic:   []string{"شارع محمد الخامس، الرباط", "الهاتف : 05 37 00 00 00"},
	}
}

// Load loads configuration from the config file.
// If the file doesn't exist, it uses default values. Environment variables win over the file.
func (m *ConfigManager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error("failed to read config file", err, logger.String("path", m.configPath))
			return types.NewDocError(types.ErrConfig, "failed to read config file", err)
		}
		logger.Info("config file not found, using defaults", logger.String("path", m.configPath))
		m.config = DefaultConfig()
	} else {
		config := &types.Config{}
		if err := json.Unmarshal(data, config); err != nil {
			logger.Warn("invalid config file format, using defaults", logger.String("path", m.configPath), logger.Err(err))
			m.config = DefaultConfig()
		} else {
			logger.Info("configuration loaded successfully",
				logger.String("path", m.configPath),
				logger.String("fontPath", config.FontPath),
				logger.String("archive", config.Archive.Kind))
			m.config = config
		}
	}

	m.applyDefaults()
	m.applyEnv()
	return nil
}

func (m *ConfigManager) applyDefaults() {
	c := m.config
	if c.FontPath == "" {
		c.FontPath = DefaultFontPath
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.OutputDirectory == "" {
		c.OutputDirectory = DefaultOutputDirectory
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Organization.NameLatin == "" && c.Organization.NameArabic == "" {
		c.Organization = DefaultOrganization()
	}
}

func (m *ConfigManager) applyEnv() {
	if v := os.Getenv(EnvFontPath); v != "" {
		m.config.FontPath = v
	}
	if v := os.Getenv(EnvLogoPath); v != "" {
		m.config.LogoPath = v
	}
	if v := os.Getenv(EnvArchiveBucket); v != "" {
		m.config.Archive.Kind = "gcs"
		m.config.Archive.Bucket = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		m.config.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv(EnvRegisterDirectory); v != "" {
		m.config.RegisterDirectory = v
	}
}

// Save saves the current configuration to the config file.
func (m *ConfigManager) Save() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewDocError(types.ErrConfig, "failed to create config directory", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewDocError(types.ErrConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewDocError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved successfully", logger.String("path", m.configPath))
	return nil
}

// GetConfig returns the current configuration.
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		return DefaultConfig()
	}
	return m.config
}

// SetConfig sets the entire configuration.
func (m *ConfigManager) SetConfig(config *types.Config) {
	m.config = config
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

// GetFontPath returns the Arabic font path.
func (m *ConfigManager) GetFontPath() string {
	if m.config != nil && m.config.FontPath != "" {
		return m.config.FontPath
	}
	return DefaultFontPath
}

// GetConcurrency returns the number of documents built in parallel in batch mode.
func (m *ConfigManager) GetConcurrency() int {
	if m.config != nil && m.config.Concurrency > 0 {
		return m.config.Concurrency
	}
	return DefaultConcurrency
}
