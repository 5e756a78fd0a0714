package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/creamsy-pos/internal/cache"
	"github.com/fjod/creamsy-pos/internal/cart"
	"github.com/fjod/creamsy-pos/internal/catalog"
	"github.com/fjod/creamsy-pos/internal/checkout"
	"github.com/fjod/creamsy-pos/internal/config"
	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/fjod/creamsy-pos/internal/gateway"
	"github.com/fjod/creamsy-pos/internal/history"
	h "github.com/fjod/creamsy-pos/internal/http"
	"github.com/fjod/creamsy-pos/internal/publisher"
	"github.com/fjod/creamsy-pos/internal/session"
	"github.com/fjod/creamsy-pos/internal/store"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type salePublisher interface {
	PublishSale(ctx context.Context, tx *domain.Transaction) error
	Close() error
}

// app holds one terminal's worth of wiring.
type app struct {
	cfg *config.Config

	store     *store.Store
	redis     *redis.Client
	publisher salePublisher

	sessions *session.Manager
	catalog  *catalog.Store
	cart     *cart.Engine
	checkout *checkout.Orchestrator
	history  *history.Service
	reloader *history.Reloader

	unwatchCart func()
}

func newApp(cfg *config.Config) (*app, error) {
	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.RunMigrations(); err != nil {
		st.Close()
		return nil, err
	}

	client := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.APIURL,
		APIKey:    cfg.APIKey,
		Bucket:    cfg.StorageBucket,
		Timeout:   cfg.HTTPTimeout,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	})
	sessions := session.NewManager(client, st, cfg.ExpiryMargin)
	gw := gateway.NewGateway(client, sessions)

	a := &app{cfg: cfg, store: st, sessions: sessions}

	var snapshots cache.CatalogCache
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		snapshots = cache.NewRedisCache(a.redis)
		log.WithField("addr", cfg.RedisAddr).Info("catalog snapshots enabled")
	}

	if len(cfg.KafkaBrokers) > 0 {
		a.publisher = publisher.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...)
		log.WithFields(log.Fields{"brokers": cfg.KafkaBrokers, "topic": cfg.KafkaTopic}).Info("sale events enabled")
	} else {
		a.publisher = publisher.Noop{}
	}

	a.catalog = catalog.NewStore(gw, sessions, snapshots)
	a.cart = cart.NewEngine(a.catalog)
	a.unwatchCart = a.cart.Subscribe(func(s cart.Snapshot) {
		log.WithFields(log.Fields{"units": s.Len(), "total": s.Total.String()}).Debug("cart changed")
	})
	a.checkout = checkout.NewOrchestrator(gw, a.catalog, a.cart, a.publisher)
	a.history = history.NewService(gw)
	a.reloader = history.NewReloader(a.history, cfg.HistoryReload, func(err error) bool {
		return errors.Is(err, session.ErrNotSignedIn)
	})
	return a, nil
}

func (a *app) handlers() h.Handlers {
	timeout := a.cfg.HTTPTimeout
	return h.Handlers{
		Session:     h.NewSessionHandler(a.sessions, a.catalog, a.cart, a.reloader, timeout),
		Products:    h.NewProductHandler(a.catalog, timeout),
		Cart:        h.NewCartHandler(a.cart, a.catalog),
		Checkout:    h.NewCheckoutHandler(a.checkout, timeout),
		Transaction: h.NewTransactionHandler(a.history, a.reloader, timeout),
		Users:       a.sessions,
	}
}

// restore brings back the persisted session and, when it is usable, the
// catalog.
func (a *app) restore(ctx context.Context) (session.RestoreResult, error) {
	result, err := a.sessions.RestoreOrRefresh(ctx)
	entry := log.WithField("result", result.String())
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("session restore finished")

	if result == session.RequireLogin {
		return result, err
	}
	if _, fromCache, err := a.catalog.WarmStart(ctx); err != nil {
		log.WithError(err).Warn("catalog not loaded at startup")
	} else if fromCache {
		log.Info("catalog served from snapshot")
	}
	return result, err
}

func (a *app) Close() error {
	if a.unwatchCart != nil {
		a.unwatchCart()
	}

	var errs []error
	if err := a.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
