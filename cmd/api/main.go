package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Key2PayBridge/internal/auth"
	"Key2PayBridge/internal/config"
	"Key2PayBridge/internal/db"
	internalhttp "Key2PayBridge/internal/http"
	"Key2PayBridge/internal/key2pay"
	"Key2PayBridge/internal/logging"
	"Key2PayBridge/internal/models"
	"Key2PayBridge/internal/services"
	"Key2PayBridge/internal/store"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger, err := logging.New(cfg.Key2Pay.Debug)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	authType, err := auth.ParseType(cfg.Key2Pay.AuthType)
	if err != nil {
		logger.Fatal("auth config invalid", zap.Error(err))
	}
	strategy := auth.Strategy{
		Type: authType,
		Credentials: auth.Credentials{
			MerchantID:  cfg.Key2Pay.MerchantID,
			Password:    cfg.Key2Pay.Password,
			APIKey:      cfg.Key2Pay.APIKey,
			SecretKey:   cfg.Key2Pay.SecretKey,
			AccessToken: cfg.Key2Pay.AccessToken,
		},
	}
	if !strategy.IsConfigured() {
		logger.Warn("key2pay credentials incomplete for selected auth type",
			zap.String("auth_type", string(authType)))
	}

	client := key2pay.NewClient(key2pay.ClientConfig{
		APIBase:           cfg.Key2Pay.APIBase,
		PaymentMethodType: cfg.Key2Pay.PaymentMethodType,
		Timeout:           time.Duration(cfg.Key2Pay.RequestTimeoutSeconds) * time.Second,
		Debug:             cfg.Key2Pay.Debug,
	}, strategy, logger)

	st := store.New(pool)
	events := internalhttp.NewEventHub(logger)

	checkoutSvc := &services.CheckoutService{
		Store:  st,
		Client: client,
		Config: services.CheckoutConfig{
			PublicBaseURL: cfg.Server.PublicBaseURL,
			StoreName:     cfg.Server.StoreName,
			BillingDefaults: models.Billing{
				Phone:   cfg.BillingDefaults.Phone,
				Country: cfg.BillingDefaults.Country,
				City:    cfg.BillingDefaults.City,
				State:   cfg.BillingDefaults.State,
				Address: cfg.BillingDefaults.Address,
			},
		},
		Log: logger,
	}
	reconcileSvc := &services.ReconcileService{
		Store:  st,
		Events: events,
		Log:    logger,
	}

	h := internalhttp.NewHandler(checkoutSvc, reconcileSvc, events, strategy, cfg.Key2Pay.EnableURLFallback, logger)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		logger.Info("api listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
