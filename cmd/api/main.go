package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lv-settle/internal/accounts"
	"lv-settle/internal/config"
	"lv-settle/internal/db"
	"lv-settle/internal/httpserver"
	"lv-settle/internal/ib"
	"lv-settle/internal/ledger"
	"lv-settle/internal/notify"
	"lv-settle/internal/pamm"
	"lv-settle/internal/recon"
	"lv-settle/internal/risk"
	"lv-settle/internal/settlement"
	"lv-settle/internal/store"
	"lv-settle/internal/types"
	"lv-settle/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect")
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	st := store.NewPostgres(pool)
	ledgerSvc := ledger.NewService(st, log)
	accountsSvc := accounts.NewService(st, log)
	gate := risk.NewGate(st, ledgerSvc, decimal.Zero, log)
	walletSvc := wallet.NewService(st, ledgerSvc, log)
	ibSvc := ib.NewService(st, ledgerSvc, log)
	settlementSvc := settlement.NewService(st, ledgerSvc, accountsSvc, gate, log)
	reconSvc := recon.NewService(st, ledgerSvc, log)

	bus := notify.NewBus()
	notifier := notify.Fanout{bus}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis connect")
		}
		defer client.Close()
		notifier = append(notifier, notify.NewRedisPublisher(client, notify.DefaultChannel, log))
	}

	pammSvc := pamm.NewService(st, ledgerSvc, accountsSvc, ibSvc, notifier, log)

	settlementSvc.Register(types.OutboxKindIBCascade, func(ctx context.Context, payload []byte) error {
		var p settlement.IBCascadePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		return ibSvc.SettleTrade(ctx, ib.Trade{ID: p.PositionID, Volume: p.Volume}, p.ClientUserID, p.Currency)
	})
	settlementSvc.Register(types.OutboxKindPammDistribution, func(ctx context.Context, payload []byte) error {
		var p settlement.PammDistributionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		return pammSvc.DistributePnl(ctx, p.ManagerID, p.AccountID, p.PositionID, p.Pnl, p.Volume, p.Currency)
	})
	settlementSvc.Register(types.OutboxKindNotify, func(ctx context.Context, payload []byte) error {
		var p settlement.NotifyPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		notifier.Emit(ctx, notify.Event{Type: p.Event, UserIDs: p.UserIDs, Data: p.Data})
		return nil
	})

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go settlement.NewWorker(settlementSvc, cfg.OutboxInterval).Run(workerCtx)

	tokens := httpserver.NewTokenService(cfg.JWTIssuer, cfg.JWTSecret)
	wsHandler := notify.NewWSHandler(bus, tokens.ParseToken, cfg.WebSocketOrigin, log)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		LedgerHandler:     ledger.NewHandler(ledgerSvc),
		WalletHandler:     wallet.NewHandler(walletSvc, cfg.DefaultCurrency),
		AccountsHandler:   accounts.NewHandler(accountsSvc),
		SettlementHandler: settlement.NewHandler(settlementSvc, cfg.DefaultCurrency),
		IBHandler:         ib.NewHandler(ibSvc, cfg.DefaultCurrency),
		PammHandler:       pamm.NewHandler(pammSvc, cfg.DefaultCurrency),
		ReconHandler:      recon.NewHandler(reconSvc, cfg.DefaultCurrency),
		Tokens:            tokens,
		InternalToken:     cfg.InternalToken,
		WSHandler:         wsHandler,
		CORSOrigin:        cfg.CORSOrigin,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	log.Info().Str("addr", cfg.HTTPAddr).Msg("server listening")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		stopWorker()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server")
	}
}
