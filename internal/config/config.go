package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	DataDir            string `json:"data_dir"`
	LogLevel           string `json:"log_level"`
	LexiconPath        string `json:"lexicon_path"`
	ExtractorTimeoutMS int    `json:"extractor_timeout_ms"`
	HTTP               struct {
		Addr string `json:"addr"`
	} `json:"http"`
	Generator struct {
		BaseURL       string  `json:"base_url"`
		APIKey        string  `json:"api_key"`
		Model         string  `json:"model"`
		Temperature   float32 `json:"temperature"`
		HistoryTokens int     `json:"history_tokens"`
	} `json:"generator"`
	Postgres struct {
		DSN string `json:"dsn"`
	} `json:"postgres"`
	Telegram struct {
		Token  string `json:"token"`
		ChatID int64  `json:"chat_id"`
	} `json:"telegram"`
	Scheduler struct {
		Spec string `json:"spec"`
	} `json:"scheduler"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:            filepath.Join(os.Getenv("HOME"), ".haven"),
		LogLevel:           "info",
		ExtractorTimeoutMS: 2000,
	}
	cfg.HTTP.Addr = ":8087"
	cfg.Generator.BaseURL = "https://api.openai.com/v1"
	cfg.Generator.Model = "gpt-4o-mini"
	cfg.Generator.Temperature = 0.4
	cfg.Generator.HistoryTokens = 2000
	cfg.Scheduler.Spec = "@every 5m"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.Generator.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.Generator.BaseURL = baseURL
	}
	if dsn := os.Getenv("HAVEN_POSTGRES_DSN"); dsn != "" {
		cfg.Postgres.DSN = dsn
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}

	return cfg, nil
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}

// ListValues returns the config as a flat dot-keyed map, with secrets
// masked when mask is true.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	flat := Flatten(nested)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads one dot-keyed value straight from the config file.
func GetValue(path, key string) (any, error) {
	nested, err := readFile(path)
	if err != nil {
		return nil, err
	}
	flat := Flatten(nested)
	val, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	if IsSecretKey(key) {
		return MaskSecrets(map[string]any{key: val})[key], nil
	}
	return val, nil
}

// SetValue writes one dot-keyed value back to the config file, coercing
// numeric and boolean strings to their JSON types.
func SetValue(path, key, value string) error {
	nested, err := readFile(path)
	if err != nil {
		return err
	}
	flat := Flatten(nested)
	flat[key] = coerce(value)
	nested = Unflatten(flat)

	data, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return nested, nil
}

func coerce(value string) any {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
