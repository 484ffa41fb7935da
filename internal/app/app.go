// Package app wires the pipeline together: one consumer for object-store
// events, one for the jobs queue, and the supporting workers around them.
package app

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/dedupe"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/deadletter"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/healthchecker"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/ingest"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/logging"
	minioRelay "git.mci.dev/mse/sre/phoenix/golang/relay/internal/minio"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/notify"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/oncall"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/redirect"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/secrets"
	"git.mci.dev/mse/sre/phoenix/golang/relay/internal/transcribe"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Relay struct {
	DBConn               *gorm.DB
	MinioClient          *minioRelay.MinioClient
	RedirectStore        *redirect.Store
	EventsConsumer       *kafka.Consumer
	JobsConsumer         *kafka.Consumer
	KafkaProducer        *kafka.Producer
	WorkerPool           *ants.Pool
	IngestService        *ingest.Service
	NotifyService        *notify.Service
	TranscribeConsumer   *transcribe.Consumer
	DeadLetterService    *deadletter.DeadLetterService
	DeadLetterWorker     *deadletter.DeadLetterWorker
	HealthCheckerService *healthchecker.Healthchecker
}

func NewApp(ctx context.Context, ctxCancelFunc context.CancelFunc) (*Relay, error) {
	logging.Logger.Info("[NewApp] Initializing relay application...")

	healthcheckerService := healthchecker.NewService(ctxCancelFunc)

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize database", zap.Error(err))
		return nil, err
	}

	minioClient, err := minioRelay.NewMinioClient(
		config.Conf.MinioAccessKey,
		config.Conf.MinioSecretKey,
		config.Conf.MinioBucketName,
		config.Conf.MinioPathPrefix,
	)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize Minio client", zap.Error(err))
		return nil, err
	}

	redirectStore, err := redirect.NewStore(ctx)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize redirect store", zap.Error(err))
		return nil, err
	}

	eventsConsumer, jobsConsumer, err := initializeKafkaConsumers()
	if err != nil {
		return nil, err
	}

	kafkaProducer, workerPool, err := initializeKafkaProducerAndPool()
	if err != nil {
		return nil, err
	}

	relayApp := &Relay{
		DBConn:               dbConn,
		MinioClient:          minioClient,
		RedirectStore:        redirectStore,
		EventsConsumer:       eventsConsumer,
		JobsConsumer:         jobsConsumer,
		KafkaProducer:        kafkaProducer,
		WorkerPool:           workerPool,
		HealthCheckerService: healthcheckerService,
	}

	err = relayApp.initializeServices(ctx)
	if err != nil {
		return nil, err
	}

	logging.Logger.Info("[NewApp] Initializing circuit breakers...")
	circuitbreak.Init()

	return relayApp, nil
}

func initializeKafkaConsumers() (*kafka.Consumer, *kafka.Consumer, error) {
	eventsConsumer, err := kafka.NewConsumer(config.Conf.KafkaRadioEventsGroupID, "radio-events")
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create radio events consumer", zap.Error(err))
		return nil, nil, err
	}

	jobsConsumer, err := kafka.NewConsumer(config.Conf.KafkaJobsGroupID, "jobs")
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create jobs consumer", zap.Error(err))
		return nil, nil, err
	}

	return eventsConsumer, jobsConsumer, nil
}

func initializeKafkaProducerAndPool() (*kafka.Producer, *ants.Pool, error) {
	kafkaProducer, err := kafka.NewProducer()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create Kafka producer", zap.Error(err))
		return nil, nil, err
	}

	workerPool, err := ants.NewPool(config.Conf.PoolSize, ants.WithPreAlloc(true))
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create worker pool", zap.Error(err))
		return nil, nil, err
	}

	return kafkaProducer, workerPool, nil
}

func (app *Relay) initializeServices(ctx context.Context) error {
	callRepository := call.NewRepository(app.DBConn)
	channelDirectory := call.NewChannelDirectory(
		call.NewChannelRepository(app.DBConn),
		time.Duration(config.Conf.ChannelCacheTTLSecs)*time.Second,
	)

	secretSource := secrets.NewEnvSource()

	gateway, err := notify.NewTwilioGateway(ctx, secretSource)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create messaging gateway", zap.Error(err))
		return err
	}

	shiftCache := oncall.NewCache(
		oncall.NewHTTPFeed(secretSource),
		time.Duration(config.Conf.ShiftCacheTTLSeconds)*time.Second,
	)

	numberCache := notify.NewNumberCache(
		notify.NewNumberRepository(app.DBConn),
		time.Duration(config.Conf.NumberCacheTTLSecs)*time.Second,
	)

	app.NotifyService = notify.NewService(
		notify.NewMessageRepository(app.DBConn),
		notify.NewRecipientRepository(app.DBConn),
		callRepository,
		channelDirectory,
		oncall.NewResolver(shiftCache),
		numberCache,
		gateway,
		app.MinioClient,
	)

	enqueuer := notify.NewEnqueuer(app.KafkaProducer, config.Conf.KafkaJobsTopic)

	resolver := dedupe.NewResolver(
		callRepository,
		app.MinioClient,
		app.RedirectStore,
		config.Conf.DedupeSelectionBufferSeconds,
		config.Conf.DedupeTightBufferSeconds,
	)

	app.IngestService = ingest.NewService(
		callRepository,
		channelDirectory,
		resolver,
		transcribe.NewDispatcher(app.MinioClient),
		enqueuer,
	)

	app.TranscribeConsumer = transcribe.NewConsumer(
		callRepository,
		app.RedirectStore,
		transcribe.NewFetcher(),
		app.NotifyService,
	)

	app.DeadLetterService = deadletter.NewService(app.DBConn, app.reprocessEvent)

	deadLetterWorker, err := deadletter.NewWorker(app.DeadLetterService, app.DBConn)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create dead letter worker", zap.Error(err))
		return err
	}

	app.DeadLetterWorker = deadLetterWorker

	return nil
}

func (app *Relay) Run(ctx context.Context) error {
	logging.Logger.Info("[Run] Starting app goroutines...")

	go app.HealthCheckerService.Monitor()
	go app.DeadLetterWorker.Run(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logging.Logger.Info("[Run] Starting radio events consumer (BLOCKING)",
			zap.String("topic", config.Conf.KafkaRadioEventsTopic),
			zap.Int("worker_pool_size", config.Conf.PoolSize),
		)

		return app.EventsConsumer.Consume(groupCtx, config.Conf.KafkaRadioEventsTopic, app.RadioEventHandler)
	})

	group.Go(func() error {
		logging.Logger.Info("[Run] Starting jobs consumer (BLOCKING)",
			zap.String("topic", config.Conf.KafkaJobsTopic),
		)

		return app.JobsConsumer.Consume(groupCtx, config.Conf.KafkaJobsTopic, app.JobHandler)
	})

	err := group.Wait()
	if err != nil {
		logging.Logger.Error("[Run] Consumer returned error", zap.Error(err))
		return err
	}

	logging.Logger.Warn("[Run] Consumers returned (context canceled), beginning shutdown...")
	app.shutdown()

	return nil
}

func (app *Relay) shutdown() {
	closeOps := map[string]func() error{
		"radio events consumer": app.EventsConsumer.Close,
		"jobs consumer":         app.JobsConsumer.Close,
		"kafka producer":        app.KafkaProducer.Close,
		"redirect store":        app.RedirectStore.Close,
	}

	for name, closeOp := range closeOps {
		err := closeOp()
		if err != nil {
			logging.Logger.Error("[Run] Failed to close "+name, zap.String("error", err.Error()))
		}
	}

	logging.Logger.Info("[Run] Releasing worker pool...",
		zap.Int("running_workers", app.WorkerPool.Running()),
	)
	app.WorkerPool.Release()

	logging.Logger.Info("[Run] ===== App shutdown complete =====")
}
