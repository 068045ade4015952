package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/handlers"
	"checkout-service/internal/auth"
	"checkout-service/internal/checkout"
	"checkout-service/internal/config"
	"checkout-service/internal/consul"
	"checkout-service/internal/coupons"
	"checkout-service/internal/gateway"
	"checkout-service/internal/orders"
	"checkout-service/internal/stores/kafka"
	"checkout-service/internal/stores/postgres"
	redislock "checkout-service/internal/stores/redis"
	"checkout-service/middleware"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	setupSlog()
	if err := startApp(); err != nil {
		slog.Error("failed to start checkout service", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func startApp() error {
	// a missing .env is fine, the environment may already be populated
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", slog.String("reason", err.Error()))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()

	/*
		//------------------------------------------------------//
		              Setting up Postgres
		//------------------------------------------------------//
	*/
	db, err := postgres.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Migrate(db); err != nil {
		return err
	}

	couponConf, err := coupons.NewConf(db, coupons.RewardPolicy{
		DiscountPercentage: cfg.RewardDiscountPercent,
		TTL:                cfg.RewardCouponTTL,
	})
	if err != nil {
		return err
	}
	orderConf, err := orders.NewConf(db)
	if err != nil {
		return err
	}

	/*
		//------------------------------------------------------//
		              Payment gateway
		//------------------------------------------------------//
	*/
	gw, err := newGateway(cfg)
	if err != nil {
		return err
	}

	deps := checkout.Dependencies{
		Coupons: couponConf,
		Orders:  orderConf,
		Gateway: gateway.NewBreaker(cfg.Gateway, gw, cfg.GatewayTimeout, 30*time.Second),
	}

	/*
		//------------------------------------------------------//
		              Optional Kafka, Redis
		//------------------------------------------------------//
	*/
	if len(cfg.KafkaBrokers) > 0 {
		kafkaConf, err := kafka.NewConf(cfg.KafkaBrokers, cfg.ServiceName)
		if err != nil {
			return err
		}
		defer kafkaConf.Close()
		if err := kafkaConf.Ping(ctx); err != nil {
			slog.Warn("kafka brokers not reachable yet", slog.String("error", err.Error()))
		}
		deps.Publisher = kafkaConf
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		deps.Locker = redislock.NewLocker(rdb, 30*time.Second, 10*time.Second)
	}

	svc, err := checkout.NewService(deps, checkout.Settings{
		CallbackSecret:       cfg.CallbackSecret,
		Currency:             cfg.Currency,
		ConversionRate:       cfg.CurrencyConvRate,
		RewardThresholdMinor: cfg.RewardThresholdMinor,
	})
	if err != nil {
		return err
	}

	/*
		//------------------------------------------------------//
		              HTTP server
		//------------------------------------------------------//
	*/
	keys, err := auth.LoadKeys(cfg.JWTPublicKeyPath)
	if err != nil {
		return err
	}

	router, err := handlers.API(svc, handlers.Options{
		EndpointPrefix: cfg.EndpointPrefix,
		GinMode:        cfg.GinMode,
		Keys:           keys,
		Metrics:        middleware.NewMetrics(cfg.ServiceName),
		Provider:       cfg.Gateway,
		WebhookSecret:  cfg.WebhookSecret,
	})
	if err != nil {
		return err
	}

	api := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      otelhttp.NewHandler(router, cfg.ServiceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.GatewayTimeout + 20*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("checkout service listening", slog.String("addr", api.Addr))
		serverErrors <- api.ListenAndServe()
	}()

	/*
		//------------------------------------------------------//
		              Consul
		//------------------------------------------------------//
	*/
	var consulClient *consulapi.Client
	var serviceID string
	if cfg.ConsulAddr != "" {
		consulClient, err = consul.NewClient(cfg.ConsulAddr)
		if err != nil {
			return err
		}
		serviceID, err = consul.Register(consulClient, consul.Registration{
			Name: cfg.ServiceName,
			Host: cfg.Host,
			Port: cfg.Port,
			Tags: []string{"checkout", cfg.Gateway},
		})
		if err != nil {
			return err
		}
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		slog.Info("graceful shutdown", slog.String("signal", sig.String()))

		if consulClient != nil {
			if err := consul.Deregister(consulClient, serviceID); err != nil {
				slog.Error("consul deregister failed", slog.String("error", err.Error()))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := api.Shutdown(ctx); err != nil {
			_ = api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	// let reward coupons and events in flight finish before the stores close
	svc.Wait()
	return nil
}

func newGateway(cfg config.Config) (gateway.Client, error) {
	switch cfg.Gateway {
	case config.GatewayStripe:
		return gateway.NewStripe(cfg.StripeKey)
	case config.GatewayRazorpay:
		return gateway.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	default:
		return nil, fmt.Errorf("unsupported payment gateway %q", cfg.Gateway)
	}
}

func setupSlog() {
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		// AddSource: true adds the source file name and line number of the log
		AddSource: true,
	})

	logger := slog.New(logHandler)
	slog.SetDefault(logger)
}
