package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr          string `yaml:"addr"`
		PublicBaseURL string `yaml:"public_base_url"`
		StoreName     string `yaml:"store_name"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Key2Pay struct {
		APIBase               string `yaml:"api_base"`
		AuthType              string `yaml:"auth_type"`
		MerchantID            string `yaml:"merchant_id"`
		Password              string `yaml:"password"`
		APIKey                string `yaml:"api_key"`
		SecretKey             string `yaml:"secret_key"`
		AccessToken           string `yaml:"access_token"`
		PaymentMethodType     string `yaml:"payment_method_type"`
		EnableURLFallback     bool   `yaml:"enable_url_fallback"`
		RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
		Debug                 bool   `yaml:"debug"`
	} `yaml:"key2pay"`
	BillingDefaults struct {
		Phone   string `yaml:"phone"`
		Country string `yaml:"country"`
		City    string `yaml:"city"`
		State   string `yaml:"state"`
		Address string `yaml:"address"`
	} `yaml:"billing_defaults"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.Server.PublicBaseURL == "" {
		return nil, errors.New("server.public_base_url is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if err := validateAPIBase(cfg.Key2Pay.APIBase); err != nil {
		return nil, err
	}
	switch cfg.Key2Pay.AuthType {
	case "basic", "api_key", "bearer", "signed":
	default:
		return nil, fmt.Errorf("key2pay.auth_type %q is not supported", cfg.Key2Pay.AuthType)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Key2Pay.AuthType == "" {
		cfg.Key2Pay.AuthType = "basic"
	}
	if cfg.Key2Pay.PaymentMethodType == "" {
		cfg.Key2Pay.PaymentMethodType = "PHQR"
	}
	if cfg.Key2Pay.RequestTimeoutSeconds <= 0 {
		cfg.Key2Pay.RequestTimeoutSeconds = 60
	}
	if cfg.Server.StoreName == "" {
		cfg.Server.StoreName = "store"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		cfg.Server.PublicBaseURL = v
	}
	if v := os.Getenv("STORE_NAME"); v != "" {
		cfg.Server.StoreName = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("KEY2PAY_API_BASE"); v != "" {
		cfg.Key2Pay.APIBase = v
	}
	if v := os.Getenv("KEY2PAY_AUTH_TYPE"); v != "" {
		cfg.Key2Pay.AuthType = v
	}
	if v := os.Getenv("KEY2PAY_MERCHANT_ID"); v != "" {
		cfg.Key2Pay.MerchantID = v
	}
	if v := os.Getenv("KEY2PAY_PASSWORD"); v != "" {
		cfg.Key2Pay.Password = v
	}
	if v := os.Getenv("KEY2PAY_API_KEY"); v != "" {
		cfg.Key2Pay.APIKey = v
	}
	if v := os.Getenv("KEY2PAY_SECRET_KEY"); v != "" {
		cfg.Key2Pay.SecretKey = v
	}
	if v := os.Getenv("KEY2PAY_ACCESS_TOKEN"); v != "" {
		cfg.Key2Pay.AccessToken = v
	}
	if v := os.Getenv("KEY2PAY_PAYMENT_METHOD_TYPE"); v != "" {
		cfg.Key2Pay.PaymentMethodType = v
	}
	if v := os.Getenv("KEY2PAY_ENABLE_URL_FALLBACK"); v != "" {
		cfg.Key2Pay.EnableURLFallback = boolOr(cfg.Key2Pay.EnableURLFallback, v)
	}
	if v := os.Getenv("KEY2PAY_REQUEST_TIMEOUT_SECONDS"); v != "" {
		cfg.Key2Pay.RequestTimeoutSeconds = atoiOr(cfg.Key2Pay.RequestTimeoutSeconds, v)
	}
	if v := os.Getenv("KEY2PAY_DEBUG"); v != "" {
		cfg.Key2Pay.Debug = boolOr(cfg.Key2Pay.Debug, v)
	}
}

func validateAPIBase(raw string) error {
	if raw == "" {
		return errors.New("key2pay.api_base is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("key2pay.api_base is not a valid URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("key2pay.api_base must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

func boolOr(fallback bool, v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
