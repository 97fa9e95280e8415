package ai

import "time"

const defaultBaseURL = "https://api.openai.com/v1/chat/completions"

type Config struct {
	APIKey        string        `env:"OPENAI_API_KEY"`
	Model         string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	BaseURL       string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1/chat/completions"`
	Timeout       time.Duration `env:"AI_TIMEOUT" envDefault:"90s"`
	MaxInputChars int           `env:"AI_MAX_INPUT_CHARS" envDefault:"60000"`
}

func (c Config) Enabled() bool {
	return c.APIKey != ""
}
