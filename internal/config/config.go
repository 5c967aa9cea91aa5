package config

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Proxy   ProxyConfig
	Ollama  OllamaConfig
	Agents  AgentsConfig
	Limits  LimitsConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type ProxyConfig struct {
	OpenRouterAPIKey string
	BaseURL          string
	DefaultModel     string
	MockAIFile       string
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

// AgentEndpoint holds the connection settings for one external agent
// backend. An empty BaseURL means the provider is not configured.
type AgentEndpoint struct {
	BaseURL string
	APIKey  string
}

type AgentsConfig struct {
	FetchAI   AgentEndpoint
	JanitorAI AgentEndpoint
	Wordware  AgentEndpoint
	Letta     AgentEndpoint

	FallbackEnabled bool
	TimeoutSeconds  int
}

// LimitsConfig controls the per-client rate limiter. Requests <= 0
// disables limiting.
type LimitsConfig struct {
	Requests      int
	WindowSeconds int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Proxy: ProxyConfig{
			BaseURL:      "https://openrouter.ai/api/v1",
			DefaultModel: "openai/gpt-4o-mini",
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		Agents: AgentsConfig{
			FallbackEnabled: true,
			TimeoutSeconds:  30,
		},
		Limits: LimitsConfig{
			Requests:      0,
			WindowSeconds: 60,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/tasknest/config.json, then applies environment
// variable overrides (TASKNEST_*). Secrets such as API keys are read
// from the environment only and are never persisted to the file.
//
// A missing OpenRouter API key is not an error: the server starts in
// degraded mode and AI generation reports a configuration error (or
// serves the mock file when one is set).
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
