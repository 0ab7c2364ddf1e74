package app

import (
	"context"
	"fmt"
	"net/http"

	server "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/primary/http"
	adminController "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/primary/http/controllers/admin"
	alerterController "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/primary/http/controllers/alerter"
	healthcheckController "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/primary/http/controllers/healthcheck"
	paypalController "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/primary/http/controllers/paypal"
	yookassaController "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/primary/http/controllers/yookassa"
	alerterAdapter "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/alerter"
	kafkaAdapter "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/kafka"
	"github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/payment/paypal"
	"github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/payment/yookassa"
	"github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/storage/inmemory"
	"github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/storage/pg"
	redisAdapter "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/storage/redis"
	s3Adapter "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/storage/s3"
	tgAdapter "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/telegram"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/cache"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/kafka"
	paymentPorts "github.com/lisenka9/metaphor-bot-sub000/internal/ports/payment"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/service"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/storage"
	cardRepo "github.com/lisenka9/metaphor-bot-sub000/internal/repository/card"
	deckRepo "github.com/lisenka9/metaphor-bot-sub000/internal/repository/deck"
	paymentRepo "github.com/lisenka9/metaphor-bot-sub000/internal/repository/payment"
	subscriptionRepo "github.com/lisenka9/metaphor-bot-sub000/internal/repository/subscription"
	unresolvedRepo "github.com/lisenka9/metaphor-bot-sub000/internal/repository/unresolved"
	userRepo "github.com/lisenka9/metaphor-bot-sub000/internal/repository/user"
	alerterService "github.com/lisenka9/metaphor-bot-sub000/internal/services/alerter"
	jobScheduler "github.com/lisenka9/metaphor-bot-sub000/internal/services/jobs"
	telegramService "github.com/lisenka9/metaphor-bot-sub000/internal/services/telegram"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/activation"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/billing"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/cards"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/entitlement"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/resolver"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/review"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/users"
	"github.com/jmoiron/sqlx"
)

type Dependencies struct {
	DB              *sqlx.DB
	HTTPServer      *http.Server
	TelegramService *telegramService.Service
	KafkaProducer   kafka.IEventProducer
	RedisClient     interface{ Close() error }
	JobScheduler    *jobScheduler.Scheduler
}

// initDependencies собирает граф зависимостей приложения:
// хранилища -> репозитории -> use cases -> сервисы -> транспорт
func (a *App) initDependencies(ctx context.Context) (*Dependencies, error) {
	db, err := a.initPostgres()
	if err != nil {
		return nil, fmt.Errorf("failed to init postgres: %w", err)
	}

	repos := a.initRepositories(db)

	ext, err := a.initExternalServices()
	if err != nil {
		return nil, fmt.Errorf("failed to init external services: %w", err)
	}

	tgClient := tgAdapter.NewClient(a.Cfg.Telegram.BotToken, a.Log)
	providers := a.initProviders()
	pendingIndex := inmemory.NewPendingIndex()

	// use cases: entitlement и resolver не зависят от остальных,
	// activation связывает их с журналом платежей, billing владеет
	// жизненным циклом, review разруливает очередь вручную
	entitlementSvc := entitlement.New(repos.User, repos.Subscription, repos.CardDraw, a.Log)
	resolverSvc := resolver.New(repos.User, repos.Payment, repos.Unresolved, ext.SelectionCache, ext.Alerter, a.Log)

	usersSvc := users.New(repos.User, a.Log)

	// telegram service нужен activation для уведомлений, но сам зависит
	// от billing/cards — разрываем цикл двухфазной инициализацией ниже
	var tgService *telegramService.Service

	cardsSvc := cards.New(
		repos.Card,
		repos.CardDraw,
		repos.Deck,
		entitlementSvc,
		ext.S3,
		&lazyTelegram{svc: &tgService},
		a.Log,
	)

	activationSvc := activation.New(
		repos.Payment,
		repos.User,
		repos.Deck,
		entitlementSvc,
		pendingIndex,
		&lazyTelegram{svc: &tgService},
		cardsSvc,
		ext.Producer,
		a.Log,
	)

	billingSvc := billing.New(
		repos.Payment,
		repos.Deck,
		providers,
		resolverSvc,
		activationSvc,
		ext.SelectionCache,
		pendingIndex,
		ext.Producer,
		a.Cfg.ReturnURL,
		a.Log,
	)

	reviewSvc := review.New(repos.Unresolved, repos.Payment, repos.User, activationSvc, a.Log)

	tgService = telegramService.New(tgClient, usersSvc, billingSvc, cardsSvc, entitlementSvc, a.Log)

	if err := tgService.RegisterCommands(ctx); err != nil {
		a.Log.Warn("failed to register bot commands", "error", err)
	}

	httpServer := a.initHTTP(db, billingSvc, reviewSvc, providers, ext.Alerter)
	scheduler := a.initJobScheduler(ext, repos, providers, pendingIndex, activationSvc, resolverSvc, entitlementSvc, tgService)

	return &Dependencies{
		DB:              db,
		HTTPServer:      httpServer,
		TelegramService: tgService,
		KafkaProducer:   ext.Producer,
		RedisClient:     ext.RedisClient,
		JobScheduler:    scheduler,
	}, nil
}

// lazyTelegram отложенная ссылка на telegram service: activation и
// cards создаются раньше него, а шлют уведомления уже после старта,
// когда указатель заполнен
type lazyTelegram struct {
	svc **telegramService.Service
}

func (l *lazyTelegram) SendMessage(ctx context.Context, chatID int64, text string) error {
	if *l.svc == nil {
		return fmt.Errorf("telegram service is not initialized")
	}
	return (*l.svc).SendMessage(ctx, chatID, text)
}

func (l *lazyTelegram) SendDocument(ctx context.Context, chatID int64, fileURL string, caption string) error {
	if *l.svc == nil {
		return fmt.Errorf("telegram service is not initialized")
	}
	return (*l.svc).SendDocument(ctx, chatID, fileURL, caption)
}

// repositories содержит инициализированные репозитории
type repositories struct {
	User         repository.IUserRepo
	Payment      repository.IPaymentRepo
	Subscription repository.ISubscriptionRepo
	Deck         repository.IDeckRepo
	Card         repository.ICardRepo
	CardDraw     repository.ICardDrawRepo
	Unresolved   repository.IUnresolvedRepo
}

func (a *App) initRepositories(db *sqlx.DB) *repositories {
	persistenceLayer := pg.NewDB(db)
	return &repositories{
		User:         userRepo.New(persistenceLayer, a.Log),
		Payment:      paymentRepo.New(persistenceLayer, a.Log),
		Subscription: subscriptionRepo.New(persistenceLayer, a.Log),
		Deck:         deckRepo.New(persistenceLayer, a.Log),
		Card:         cardRepo.New(persistenceLayer, a.Log),
		CardDraw:     cardRepo.NewDrawRepo(persistenceLayer, a.Log),
		Unresolved:   unresolvedRepo.New(persistenceLayer, a.Log),
	}
}

// externalServices внешние зависимости: Redis, S3, Kafka, алертер
type externalServices struct {
	SelectionCache cache.ISelectionCache
	S3             storage.IS3Client
	Producer       kafka.IEventProducer // nil, если Kafka не настроена
	Alerter        service.IAlerterService
	RedisClient    interface{ Close() error }
}

func (a *App) initExternalServices() (*externalServices, error) {
	ext := &externalServices{}

	// Redis обязателен: на нём recency-эвристика резолвера
	redisClient, err := a.Cfg.Redis.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	ext.RedisClient = redisClient
	ext.SelectionCache = redisAdapter.NewSelectionCache(redisClient, a.Log)

	// S3 хранит картинки карт и архив колоды
	minioClient, err := a.Cfg.S3.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to init s3 client: %w", err)
	}
	ext.S3 = s3Adapter.NewClient(minioClient, a.Cfg.S3.Bucket, a.Log)

	// Kafka best-effort: без брокера события просто не шлются
	if a.Cfg.Kafka != nil && a.Cfg.Kafka.Brokers != "" {
		producer, err := kafkaAdapter.NewProducer(a.Cfg.Kafka, a.Log)
		if err != nil {
			a.Log.Warn("failed to create kafka producer, continuing without events", "error", err)
		} else {
			ext.Producer = producer
		}
	}

	// Алертер опционален, без него эскалации уходят только в очередь
	if a.Cfg.Alerter != nil && a.Cfg.Alerter.BotToken != "" {
		alerterClient := alerterAdapter.NewClient(a.Cfg.Alerter, a.Log)
		ext.Alerter = alerterService.New(alerterClient)
	}

	return ext, nil
}

// initProviders собирает карту платёжных провайдеров
func (a *App) initProviders() map[domain.PaymentProvider]paymentPorts.IPaymentProvider {
	providers := make(map[domain.PaymentProvider]paymentPorts.IPaymentProvider)

	if a.Cfg.YooKassa != nil && a.Cfg.YooKassa.ShopID != "" {
		providers[domain.ProviderYooKassa] = yookassa.NewProvider(*a.Cfg.YooKassa, a.Log)
	}
	if a.Cfg.PayPal != nil && a.Cfg.PayPal.ClientID != "" {
		providers[domain.ProviderPayPal] = paypal.NewProvider(*a.Cfg.PayPal, a.Log)
	}

	if len(providers) == 0 {
		a.Log.Warn("no payment providers configured, checkout is disabled")
	}

	return providers
}

// initHTTP собирает HTTP сервер: healthcheck, webhook'и провайдеров
// и админское API очереди разбора
func (a *App) initHTTP(
	db *sqlx.DB,
	billingSvc *billing.Service,
	reviewSvc *review.Service,
	providers map[domain.PaymentProvider]paymentPorts.IPaymentProvider,
	alerterSvc service.IAlerterService,
) *http.Server {
	controllers := []server.Controller{
		healthcheckController.New(db, a.Log),
		adminController.New(reviewSvc, a.Cfg.Admin, a.Log),
	}

	if _, ok := providers[domain.ProviderYooKassa]; ok {
		controllers = append(controllers, yookassaController.New(billingSvc, a.Log))
	}
	if paypalProvider, ok := providers[domain.ProviderPayPal]; ok {
		controllers = append(controllers, paypalController.New(billingSvc, paypalProvider, a.Log))
	}
	if alerterSvc != nil {
		controllers = append(controllers, alerterController.New(alerterSvc, a.Log))
	}

	return server.NewHTTPServer(a.Cfg.Server, a.Log, controllers...)
}

// initJobScheduler регистрирует фоновые джобы: цикл реконсиляции
// платежей и ежедневный свип истёкших подписок
func (a *App) initJobScheduler(
	ext *externalServices,
	repos *repositories,
	providers map[domain.PaymentProvider]paymentPorts.IPaymentProvider,
	pendingIndex cache.IPendingIndex,
	activationSvc *activation.Service,
	resolverSvc *resolver.Service,
	entitlementSvc *entitlement.Service,
	tgService *telegramService.Service,
) *jobScheduler.Scheduler {
	scheduler := jobScheduler.NewScheduler(a.Log, ext.Alerter)

	reconciler := jobScheduler.NewPaymentReconciler(
		pendingIndex,
		repos.Payment,
		providers,
		activationSvc,
		resolverSvc,
		a.Log,
	)
	scheduler.Register(reconciler)

	expirer := jobScheduler.NewSubscriptionExpirer(entitlementSvc, tgService, a.Log)
	scheduler.Register(expirer)

	return scheduler
}
