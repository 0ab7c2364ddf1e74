package yookassa

type Config struct {
	ShopID    string `envconfig:"SHOP_ID"`
	SecretKey string `envconfig:"SECRET_KEY"`
	BaseURL   string `envconfig:"BASE_URL" default:"https://api.yookassa.ru/v3"`
}
