package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sorafy/sorafy-agent/internal/domain"
)

type Config struct {
	Port string `yaml:"port"`

	// APIKey is required by any remote model call. Its absence is not fatal
	// at startup; calls fail when they actually need it.
	APIKey    string `yaml:"api_key"`
	ModelName string `yaml:"model_name"`

	StorageDir string `yaml:"storage_dir"`

	UseMockLLM bool `yaml:"use_mock_llm"`

	UILanguage domain.Language `yaml:"ui_language"`
	Theme      domain.Theme    `yaml:"theme"`
	DebugMode  bool            `yaml:"debug_mode"`
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "1" || strings.EqualFold(v, "true")
}

// DefaultStorageDir follows XDG conventions, falling back to ~/.local/share
// and finally the temp dir.
func DefaultStorageDir() string {
	if base := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); base != "" {
		return filepath.Join(base, "sorafy", "storage")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "share", "sorafy", "storage")
	}
	return filepath.Join(os.TempDir(), "sorafy", "storage")
}

// Load reads env vars, optionally overlaid by a YAML file pointed at by
// SORAFY_CONFIG. Env vars win over file values.
func Load() *Config {
	cfg := &Config{
		Port:       "8080",
		ModelName:  "gemini-2.5-pro",
		StorageDir: DefaultStorageDir(),
		UILanguage: domain.LanguageEnglish,
		Theme:      domain.ThemeLight,
	}

	if path := os.Getenv("SORAFY_CONFIG"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			// A broken file is ignored; env and defaults still apply.
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	cfg.Port = getEnv("SORAFY_PORT", cfg.Port)
	cfg.APIKey = getEnv("GEMINI_API_KEY", cfg.APIKey)
	cfg.ModelName = getEnv("SORAFY_MODEL_NAME", cfg.ModelName)
	cfg.StorageDir = getEnv("SORAFY_STORAGE_DIR", cfg.StorageDir)
	cfg.UseMockLLM = getBoolEnv("SORAFY_USE_MOCK_LLM", cfg.UseMockLLM)
	cfg.DebugMode = getBoolEnv("SORAFY_DEBUG", cfg.DebugMode)

	if lang := os.Getenv("SORAFY_UI_LANGUAGE"); lang != "" {
		cfg.UILanguage = domain.Language(lang)
	}

	return cfg
}
