package paypal

type Config struct {
	ClientID     string `envconfig:"CLIENT_ID"`
	ClientSecret string `envconfig:"CLIENT_SECRET"`
	BaseURL      string `envconfig:"BASE_URL" default:"https://api-m.paypal.com"`
}
