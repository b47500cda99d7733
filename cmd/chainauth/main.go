package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/chainauth"
	"github.com/layer-3/chainauth/adapters/events"
	"github.com/layer-3/chainauth/adapters/store"
	"github.com/layer-3/chainauth/adapters/tokenizer"
	"github.com/layer-3/chainauth/internal/config"
	"github.com/layer-3/chainauth/internal/log"
	"github.com/layer-3/chainauth/service"
	transport "github.com/layer-3/chainauth/transport/http"
)

func main() {
	// bootstrap logger, replaced once the config is read
	logger := log.NewZapLogger(log.Config{})

	conf, err := config.Load(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	logger = log.NewZapLogger(conf.Log)

	privateKey, err := conf.SigningKey()
	if err != nil {
		logger.Fatal("failed to load signing key", "error", err)
	}
	if privateKey == nil {
		logger.Warn("no signing key configured, tokens will not survive a restart")
		if privateKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader); err != nil {
			logger.Fatal("failed to generate signing key", "error", err)
		}
	}

	// Parse Redis URL and create client
	opts, err := redis.ParseURL(conf.Redis.URL)
	if err != nil {
		logger.Fatal("failed to parse Redis URL", "error", err)
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		events.NewWatermillLogger(logger),
	)
	if err != nil {
		logger.Fatal("failed to create Redis publisher", "error", err)
	}
	defer publisher.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sdk, err := chainauth.New(sdkConfig(conf), chainauth.WithLogger(logger), chainauth.WithRegistry(registry))
	if err != nil {
		logger.Fatal("failed to initialise chains", "error", err)
	}

	authService := service.NewAuthService(
		tokenizer.NewJWTTokenizer(privateKey),
		store.NewRedisStore(redisClient, conf.Redis.Prefix),
		events.NewWatermillPublisher(publisher),
		sdk.Verifier(),
		conf.Auth,
		logger,
	)

	routerConf := transport.RouterConfig{
		Logger: logger,
		Chains: sdk.RPCClients(),
	}
	if conf.MetricsEnabled {
		routerConf.Gatherer = registry
	}

	server := &http.Server{
		Addr:              conf.HTTP.Addr,
		Handler:           transport.SetupRouter(authService, routerConf),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server available", "listenAddr", conf.HTTP.Addr, "chains", sdk.ChainNames())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failure", "error", err)
		}
	}()

	// Wait for shutdown signal.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("failed to shut down HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
}

func sdkConfig(conf *config.Config) chainauth.Config {
	chains := make([]chainauth.ChainConfig, 0, len(conf.Chains))
	for _, c := range conf.Chains {
		chains = append(chains, chainauth.ChainConfig{
			Name:      c.Name,
			Type:      c.Type,
			ChainID:   c.ChainID,
			Endpoints: c.Endpoints,
			Timeout:   c.Timeout,
		})
	}

	return chainauth.Config{
		Domain:          conf.Auth.Domain,
		URI:             conf.Auth.URI,
		Statement:       conf.Auth.Statement,
		MessageExpiry:   conf.Auth.ChallengeTTL,
		Chains:          chains,
		HederaMirrorURL: conf.HederaMirrorURL,
	}
}
