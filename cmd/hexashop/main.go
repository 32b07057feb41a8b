package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	cartApp "github.com/davicafu/hexashop/internal/cart/application"
	cartDomain "github.com/davicafu/hexashop/internal/cart/domain"
	cartEvents "github.com/davicafu/hexashop/internal/cart/infra/inbound/events"
	cartHttp "github.com/davicafu/hexashop/internal/cart/infra/inbound/http"
	cartRepo "github.com/davicafu/hexashop/internal/cart/infra/outbound/db/sqlite"
	cartServices "github.com/davicafu/hexashop/internal/cart/infra/outbound/services"
	"github.com/davicafu/hexashop/internal/config"
	orderApp "github.com/davicafu/hexashop/internal/order/application"
	orderDomain "github.com/davicafu/hexashop/internal/order/domain"
	orderEvents "github.com/davicafu/hexashop/internal/order/infra/inbound/events"
	orderHttp "github.com/davicafu/hexashop/internal/order/infra/inbound/http"
	orderRepo "github.com/davicafu/hexashop/internal/order/infra/outbound/db/postgre"
	orderServices "github.com/davicafu/hexashop/internal/order/infra/outbound/services"
	productApp "github.com/davicafu/hexashop/internal/product/application"
	productDomain "github.com/davicafu/hexashop/internal/product/domain"
	productEvents "github.com/davicafu/hexashop/internal/product/infra/inbound/events"
	productHttp "github.com/davicafu/hexashop/internal/product/infra/inbound/http"
	productRepo "github.com/davicafu/hexashop/internal/product/infra/outbound/db/mongodb"
	"github.com/davicafu/hexashop/internal/shared/infra/analytics/clickhouse"
	"github.com/davicafu/hexashop/internal/shared/infra/broker"
	sharedEvents "github.com/davicafu/hexashop/internal/shared/infra/events"
	"github.com/davicafu/hexashop/internal/shared/infra/httpclient"
	sharedCache "github.com/davicafu/hexashop/internal/shared/infra/platform/cache"
	"github.com/davicafu/hexashop/internal/shared/infra/scheduler"
	"github.com/davicafu/hexashop/pkg/logger"
	"github.com/davicafu/hexashop/pkg/utils"

	_ "modernc.org/sqlite"
)

const (
	inboxTTL          = 24 * time.Hour
	remoteCallTimeout = 5 * time.Second
)

// ---------------- Main ----------------
func main() {
	cfg, cfgErr := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	level, name := "info", "hexashop"
	if cfg != nil {
		level, name = cfg.LogLevel, "hexashop-"+cfg.ServiceName
	}
	logger.Init(level, name) // inicializa zap
	log := logger.Logger()
	defer log.Sync()

	if cfgErr != nil {
		log.Fatal("invalid configuration", zap.Error(cfgErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Cache ----------------
	var cacheInstance sharedCache.Cache
	var inbox sharedEvents.Inbox
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("⚠️ Redis not available, using in-memory cache", zap.Error(err))
		memCache := sharedCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
		defer memCache.Stop()
		cacheInstance = memCache
		inbox = sharedEvents.NewMemoryInbox(inboxTTL)
	} else {
		cacheInstance = sharedCache.NewRedisCache(rdb)
		inbox = sharedEvents.NewRedisInbox(rdb, inboxTTL)
		log.Info("✅ Redis connected, cache enabled")
	}
	defer rdb.Close()

	// ---------------- Events ---------------
	bus := newMessaging(cfg, log)
	eventLog := openEventLog(ctx, cfg, log)

	var producers []*sharedEvents.Producer
	var consumers []*sharedEvents.Consumer
	newPublisher := func(service string) *sharedEvents.Producer {
		producer := bus.producer(service)
		producers = append(producers, producer)
		return producer
	}
	subscribe := func(service string, register func(*sharedEvents.Router) error) {
		dispatcher := sharedEvents.NewRouter(log.With(zap.String("consumer", service)), sharedEvents.Idempotent(service, inbox, log))
		if eventLog != nil {
			dispatcher.Use(sharedEvents.Audit(service, eventLog))
		}
		if err := register(dispatcher); err != nil {
			log.Fatal("failed to register event handlers", zap.String("service", service), zap.Error(err))
		}

		consumer := bus.consumer(service)
		if err := consumer.Subscribe(ctx, dispatcher.Topics(), dispatcher); err != nil {
			log.Fatal("failed to subscribe", zap.String("service", service), zap.Error(err))
		}
		consumers = append(consumers, consumer)
	}

	router := gin.Default()
	var workers []*scheduler.Worker

	// --------------- Servicios --------------
	if cfg.Runs("product") {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Stores.MongoURI))
		if err != nil {
			log.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer client.Disconnect(context.Background())

		repo, err := productRepo.NewProductRepoMongoDB(ctx, client, cfg.Stores.MongoDB)
		if err != nil {
			log.Fatal("failed to initialize product store", zap.Error(err))
		}
		if err := repo.EnsureIndexes(ctx); err != nil {
			log.Warn("⚠️ could not create product indexes", zap.Error(err))
		}

		service := productApp.NewProductService(repo, cacheInstance, newPublisher(productDomain.ServiceName), log)
		subscribe(productDomain.ServiceName, productEvents.NewProductConsumer(service, log).Register)

		productHttp.RegisterProductRoutes(router, productHttp.NewProductHandler(service))
		log.Info("📦 product service enabled")
	}

	if cfg.Runs("order") {
		db, err := sql.Open("pgx", cfg.Stores.PostgresDSN)
		if err != nil {
			log.Fatal("failed to open Postgres", zap.Error(err))
		}
		defer db.Close()
		if err := orderRepo.InitPostgresOrderSchema(ctx, db); err != nil {
			log.Fatal("failed to initialize Postgres", zap.Error(err))
		}

		carts := orderServices.NewCartClient(httpclient.New(cfg.CartServiceURL, remoteCallTimeout, log))
		catalog := orderServices.NewProductClient(httpclient.New(cfg.ProductServiceURL, remoteCallTimeout, log))

		service := orderApp.NewOrderService(orderRepo.NewOrderRepoPostgres(db), carts, catalog, cacheInstance,
			newPublisher(orderDomain.ServiceName), log)
		subscribe(orderDomain.ServiceName, orderEvents.NewOrderConsumer(service, log).Register)

		orderHttp.RegisterOrderRoutes(router, orderHttp.NewOrderHandler(service, log))
		workers = append(workers, scheduler.NewWorker("cancel-stale-orders", cfg.CleanupInterval, func(ctx context.Context) error {
			_, err := service.CancelOldPendingOrders(ctx, orderDomain.StaleOrderAge)
			return err
		}, log))
		log.Info("🧾 order service enabled")
	}

	if cfg.Runs("cart") {
		db, err := sql.Open("sqlite", cfg.Stores.SQLitePath)
		if err != nil {
			log.Fatal("failed to open SQLite", zap.Error(err))
		}
		defer db.Close()
		// SQLite admite un único escritor
		db.SetMaxOpenConns(1)
		if err := cartRepo.InitSQLiteCartSchema(ctx, db); err != nil {
			log.Fatal("failed to initialize SQLite", zap.Error(err))
		}

		catalog := cartServices.NewProductClient(httpclient.New(cfg.ProductServiceURL, remoteCallTimeout, log))

		service := cartApp.NewCartService(cartRepo.NewCartRepoSQLite(db), catalog, cacheInstance,
			newPublisher(cartDomain.ServiceName), log)
		subscribe(cartDomain.ServiceName, cartEvents.NewCartConsumer(service, log).Register)

		cartHttp.RegisterCartRoutes(router, cartHttp.NewCartHandler(service, log))
		workers = append(workers, scheduler.NewWorker("delete-abandoned-carts", cfg.CleanupInterval, func(ctx context.Context) error {
			_, err := service.DeleteAbandonedCarts(ctx, cartDomain.AbandonedCartAge)
			return err
		}, log))
		log.Info("🛒 cart service enabled")
	}

	for _, w := range workers {
		go w.Start(ctx)
	}

	// ---------------- HTTP ----------------
	router.GET("/health", func(c *gin.Context) {
		states := make(map[string]string, len(producers))
		for _, p := range producers {
			states[p.Name()] = p.State().String()
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName, "broker": states})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if eventLog != nil {
		router.GET("/api/events/stats", eventStats(eventLog))
	}

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}
	go func() {
		log.Info("🚀 Server running", zap.String("url", "http://localhost:"+cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Primero deja de aceptar peticiones, luego corta la entrada de eventos y por último vacía la salida
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}
	for _, c := range consumers {
		if err := c.Disconnect(shutdownCtx); err != nil {
			log.Warn("consumer shutdown", zap.Error(err))
		}
	}
	// Con los consumidores parados ya no llegan registros de auditoría
	if eventLog != nil {
		if err := eventLog.Close(); err != nil {
			log.Warn("event log shutdown", zap.Error(err))
		}
	}
	for _, p := range producers {
		if err := p.Close(shutdownCtx); err != nil {
			log.Warn("producer shutdown", zap.Error(err))
		}
	}
	log.Info("👋 bye")
}

// messaging decide el transporte: Kafka real o el broker en memoria del proceso.
type messaging struct {
	cfg     config.Kafka
	broker  broker.Config
	memory  *sharedEvents.InMemoryBroker
	dial    broker.DialFunc
	readers sharedEvents.ReaderFactory
	log     *zap.Logger
}

func newMessaging(cfg *config.Config, log *zap.Logger) *messaging {
	m := &messaging{cfg: cfg.Kafka, broker: broker.FromConfig(cfg.Kafka), log: log}
	if cfg.Kafka.Enabled {
		log.Info("🚀 Using Kafka as event bus", zap.Strings("brokers", cfg.Kafka.Brokers))
		m.dial = sharedEvents.KafkaDial(m.broker)
		m.readers = sharedEvents.KafkaReaders(m.broker)
		return m
	}

	log.Info("⚡️ Using in-memory event bus")
	m.memory = sharedEvents.NewInMemoryBroker()
	m.dial = m.memory.Dial
	m.readers = m.memory.Readers()
	return m
}

func (m *messaging) producer(service string) *sharedEvents.Producer {
	var writer sharedEvents.MessageWriter = m.memory
	if m.memory == nil {
		writer = sharedEvents.NewKafkaWriter(m.broker)
	}

	opts := []sharedEvents.ProducerOption{sharedEvents.WithKeyFields("orderId", "productId", "userId")}
	if m.cfg.SnapshotDir != "" {
		opts = append(opts, sharedEvents.WithPendingStore(sharedEvents.NewFilePendingStore(m.cfg.SnapshotDir, service)))
	}

	p := sharedEvents.NewProducer(service, m.broker, writer, m.dial, m.log, opts...)
	// Sin broker disponible el Producer encola y reintenta en segundo plano
	p.ConnectAsync()
	return p
}

func (m *messaging) consumer(service string) *sharedEvents.Consumer {
	return sharedEvents.NewConsumer("hexashop-"+service, m.broker, m.readers, m.dial, m.log)
}

// openEventLog activa el registro de eventos en ClickHouse si hay dirección configurada.
func openEventLog(ctx context.Context, cfg *config.Config, log *zap.Logger) *clickhouse.EventLogRepo {
	if cfg.Stores.ClickHouseAddr == "" {
		return nil
	}
	db, err := clickhouse.Open(cfg.Stores.ClickHouseAddr, cfg.Stores.ClickHouseDB)
	if err != nil {
		log.Warn("⚠️ ClickHouse not available, event log disabled", zap.Error(err))
		return nil
	}

	repo := clickhouse.NewEventLogRepo(db, 500, 2*time.Second, log)
	if err := repo.InitSchema(ctx); err != nil {
		log.Warn("⚠️ could not create event log table, event log disabled", zap.Error(err))
		db.Close()
		return nil
	}
	repo.Start()
	log.Info("📊 ClickHouse event log enabled")
	return repo
}

// eventStats resume el registro de eventos consumidos; ?since=1h por defecto.
func eventStats(repo *clickhouse.EventLogRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		window, err := time.ParseDuration(c.DefaultQuery("since", "1h"))
		if err != nil || window <= 0 {
			utils.SendBadRequest(c, "invalid since")
			return
		}
		counts, err := repo.CountsSince(c.Request.Context(), time.Now().Add(-window))
		if err != nil {
			utils.SendInternalServerError(c, "event log unavailable")
			return
		}
		utils.SendSuccess(c, http.StatusOK, counts)
	}
}
