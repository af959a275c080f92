package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	AI          AIConfig
	Interpreter InterpreterConfig
	Gateway     GatewayConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	gateway, err := loadGatewayConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:      server,
		Log:         LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "info")},
		AI:          ai,
		Interpreter: loadInterpreterConfig(),
		Gateway:     gateway,
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, oops.In("config").Wrapf(err, "failed to validate config")
	}

	return cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string `validate:"required"`
	MetricsEnabled bool
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	metrics, err := parseBoolEnv("METRICS_ENABLED", true)
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "4000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":4000" 或 "127.0.0.1:4000"。
		return ServerConfig{Addr: port, MetricsEnabled: metrics}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, oops.In("config").Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, MetricsEnabled: metrics}, nil
}

// LogConfig 控制日志输出。
type LogConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

// AIConfig 描述大模型相关配置。OpenAI 与 Ark 二选一，OpenAI 优先。
type AIConfig struct {
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string

	Temperature *float64
	MaxTokens   *int
}

// OpenAIEnabled 表示是否提供了 OpenAI 凭证。
func (c AIConfig) OpenAIEnabled() bool {
	return c.OpenAIKey != "" && c.OpenAIModel != ""
}

// ArkEnabled 表示是否提供了 Ark 的必需密钥。
func (c AIConfig) ArkEnabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// Enabled reports whether any live model backend can be constructed.
func (c AIConfig) Enabled() bool {
	return c.OpenAIEnabled() || c.ArkEnabled()
}

// NewChatModel 使用 Ark 配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.ArkEnabled() {
		return nil, oops.In("config").Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		OpenAIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         strings.TrimSpace(os.Getenv("Model")),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		MaxTokens:     maxTokens,
	}, nil
}

// InterpreterConfig 描述医生与患者使用的语言。
type InterpreterConfig struct {
	DoctorLanguage  string `validate:"required"`
	PatientLanguage string `validate:"required,nefield=DoctorLanguage"`
	PhrasebookPath  string `validate:"omitempty,file"`
}

func loadInterpreterConfig() InterpreterConfig {
	return InterpreterConfig{
		DoctorLanguage:  getEnvOrDefault("INTERPRETER_DOCTOR_LANGUAGE", "English"),
		PatientLanguage: getEnvOrDefault("INTERPRETER_PATIENT_LANGUAGE", "Spanish"),
		PhrasebookPath:  strings.TrimSpace(os.Getenv("INTERPRETER_PHRASEBOOK")),
	}
}

// GatewayConfig bounds every call made to the live model.
type GatewayConfig struct {
	Timeout         time.Duration `validate:"gt=0"`
	BreakerFailures int           `validate:"gte=1"`
	BreakerReset    time.Duration `validate:"gt=0"`
}

func loadGatewayConfig() (GatewayConfig, error) {
	timeout, err := parseDurationEnv("GATEWAY_TIMEOUT", 15*time.Second)
	if err != nil {
		return GatewayConfig{}, err
	}

	reset, err := parseDurationEnv("GATEWAY_BREAKER_RESET", 30*time.Second)
	if err != nil {
		return GatewayConfig{}, err
	}

	failures := 5
	if override, err := parseOptionalIntEnv("GATEWAY_BREAKER_FAILURES"); err != nil {
		return GatewayConfig{}, err
	} else if override != nil {
		failures = *override
	}

	return GatewayConfig{
		Timeout:         timeout,
		BreakerFailures: failures,
		BreakerReset:    reset,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
