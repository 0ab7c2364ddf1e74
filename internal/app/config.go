package app

import (
	server "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/primary/http"
	"github.com/lisenka9/metaphor-bot-sub000/internal/adapters/primary/http/controllers/admin"
	alerterAdapter "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/alerter"
	kafkaAdapter "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/kafka"
	"github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/payment/paypal"
	"github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/payment/yookassa"
	"github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/storage/pg"
	redisAdapter "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/storage/redis"
	s3Adapter "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/storage/s3"
	"github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/telegram"
	"github.com/lisenka9/metaphor-bot-sub000/internal/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Postgres  *pg.Config             `envconfig:"POSTGRES"`
	Log       *logger.Config         `envconfig:"LOG"`
	Server    *server.Config         `envconfig:"APISERVER"`
	Telegram  *telegram.Config       `envconfig:"TELEGRAM"`
	Redis     *redisAdapter.Config   `envconfig:"REDIS"`
	S3        *s3Adapter.Config      `envconfig:"S3"`
	Kafka     *kafkaAdapter.Config   `envconfig:"KAFKA"`
	Alerter   *alerterAdapter.Config `envconfig:"ALERTER"`
	YooKassa  *yookassa.Config       `envconfig:"YOOKASSA"`
	PayPal    *paypal.Config         `envconfig:"PAYPAL"`
	Admin     admin.Config           `envconfig:"ADMIN"`
	ReturnURL string                 `envconfig:"RETURN_URL" required:"true"` // куда провайдер вернёт пользователя после оплаты
}

func NewEnvConfig(envPrefix string) (*Config, error) {
	cfg := &Config{}

	_ = godotenv.Load("deployments/local/.env")

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
