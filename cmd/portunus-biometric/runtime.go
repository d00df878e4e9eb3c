package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/config"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/db"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/match"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store/postgres"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store/rediscache"
	sqlitestore "github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store/sqlite"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/templatecrypt"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

// runtime is everything a mode needs, built once from the config.
type runtime struct {
	cfg     config.Config
	log     *logrus.Logger
	store   store.Store
	key     *templatecrypt.Key
	matcher match.Matcher
	session service.Session
}

func newRuntime(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*runtime, error) {
	key, err := templatecrypt.DeriveKey([]byte(cfg.EncryptionKey), []byte(cfg.EncryptionSalt), cfg.KDFIterations)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		key.Close()
		return nil, err
	}

	rt := &runtime{cfg: cfg, log: logger, store: st, key: key}

	unit, err := service.NewUnitRegistry(st, !cfg.IsProd(), logger).Resolve(ctx, cfg.UnitCode)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.session = service.Session{Unit: unit, Device: cfg.SensorDevice}

	if rt.matcher, err = match.New(types.Strategy(cfg.MatchStrategy), cfg.MatchThreshold, key); err != nil {
		rt.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"env":       cfg.Env,
		"unit_code": unit.UnitCode,
		"unit_id":   unit.ID,
		"driver":    cfg.DBDriver,
		"strategy":  rt.matcher.Strategy(),
		"cache":     cfg.RedisAddr != "",
	}).Info("runtime ready")
	return rt, nil
}

// openStore opens the configured backend, seeds the unit in dev and wraps
// the result in the Redis candidate cache when REDIS_ADDR is set. A cache
// that cannot be reached at start-up is skipped, not fatal.
func openStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (store.Store, error) {
	var st store.Store

	switch cfg.DBDriver {
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		st = pg
	case "memory":
		st = memory.New()
	default:
		sq, err := sqlitestore.Open(ctx, cfg.DBPath, logger)
		if err != nil {
			return nil, err
		}
		if !cfg.IsProd() {
			if err := db.SeedDev(ctx, sq.DB(), db.SeedDevOptions{UnitCode: cfg.UnitCode, UnitName: cfg.UnitName}); err != nil {
				_ = sq.Close()
				return nil, fmt.Errorf("seed dev: %w", err)
			}
		}
		st = sq
	}

	if cfg.DBDriver != "sqlite" && !cfg.IsProd() {
		u, err := st.ResolveUnit(ctx, cfg.UnitCode)
		if err == nil && u == nil {
			_, err = st.UpsertUnit(ctx, cfg.UnitCode, cfg.UnitName)
		}
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("seed dev: %w", err)
		}
	}

	if cfg.RedisAddr == "" {
		return st, nil
	}
	client, err := rediscache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).WithField("addr", cfg.RedisAddr).Warn("template cache unavailable; continuing without it")
		return st, nil
	}
	return rediscache.New(st, client, cfg.CacheTTL, logger), nil
}

func (rt *runtime) queryService(g service.Gate) *service.QueryService {
	return service.NewQueryService(rt.session, rt.store, rt.store, rt.matcher, g, rt.log)
}

func (rt *runtime) Close() error {
	rt.key.Close()
	return rt.store.Close()
}
