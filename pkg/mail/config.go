package mail

// Config holds the send_email task configuration.
// Postmark tokens are optional outside production, where mail without a
// configured provider is written to the console instead.
type Config struct {
	Environment          string `env:"ENVIRONMENT" envDefault:"development"`
	DefaultFromEmail     string `env:"DEFAULT_FROM_EMAIL,required"`
	SiteURL              string `env:"SITE_URL" envDefault:"http://localhost:8080"`
	StaticURL            string `env:"STATIC_URL" envDefault:"/static/"`
	PublicStaticURL      string `env:"PUBLIC_STATIC_URL"`
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
}
