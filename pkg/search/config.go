package search

// Config describes the OpenSearch cluster. Search is disabled when no
// addresses are configured.
type Config struct {
	Addresses  []string `env:"OPENSEARCH_ADDRESSES" envSeparator:","`
	Username   string   `env:"OPENSEARCH_USERNAME"`
	Password   string   `env:"OPENSEARCH_PASSWORD"`
	Index      string   `env:"OPENSEARCH_INDEX" envDefault:"studykit-documents"`
	MaxRetries int      `env:"OPENSEARCH_MAX_RETRIES" envDefault:"3"`
}

func (c Config) Enabled() bool {
	return len(c.Addresses) > 0
}
