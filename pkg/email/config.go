package email

// Config for outgoing mail. Without a Postmark server token the process
// logs messages instead of sending them.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"no-reply@studykit.local"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@studykit.local"`
	AppURL               string `env:"APP_URL" envDefault:"http://localhost:3000"`
}

func (c Config) PostmarkEnabled() bool {
	return c.PostmarkServerToken != ""
}
