/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/faucet"
	"github.com/blnkfinance/faucet/api"
	"github.com/blnkfinance/faucet/config"
	"github.com/blnkfinance/faucet/database"
	"github.com/blnkfinance/faucet/internal/cache"
	"github.com/blnkfinance/faucet/internal/geo"
	redlock "github.com/blnkfinance/faucet/internal/lock"
	"github.com/blnkfinance/faucet/internal/notification"
	redis_db "github.com/blnkfinance/faucet/internal/redis-db"
	trace "github.com/blnkfinance/faucet/internal/traces"
)

/*
tlsServer builds an HTTPS server using CertMagic for automatic certificate management.
If no domain is specified, the certificate is issued for localhost.
*/
func tlsServer(ctx context.Context, r *gin.Engine, conf config.ServerConfig) (*http.Server, error) {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(ctx, domains); err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}, nil
}

func initializeTracing(ctx context.Context, cfg *config.Configuration) (func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return func(context.Context) error { return nil }, nil
	}
	shutdown, err := trace.SetupOTelSDK(ctx, cfg.ProjectName)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

// holdFundingLock makes sure no other process signs for the same funding account.
func holdFundingLock(ctx context.Context, redis *redis_db.Redis, cfg *config.Configuration, account string) (*redlock.Lease, error) {
	if cfg.Settlement.DisableFundingLock {
		logrus.Warn("funding lock disabled, make sure only one faucet uses this account")
		return nil, nil
	}
	locker := redlock.NewLocker(redis.Client(), redlock.FundingLockKey(account), uuid.New().String())
	lease, err := locker.Hold(ctx, time.Duration(cfg.Settlement.FundingLockTTLSec)*time.Second)
	if err != nil {
		if errors.Is(err, redlock.ErrLockHeld) {
			return nil, fmt.Errorf("another faucet is already serving funding account %s", account)
		}
		return nil, fmt.Errorf("error acquiring funding lock: %v", err)
	}
	return lease, nil
}

// run starts the server and blocks until ctx is cancelled or the server fails.
func run(ctx context.Context, server *http.Server, tls bool) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls {
			log.Printf("Starting HTTPS server on %s\n", server.Addr)
			err = server.ListenAndServeTLS("", "")
		} else {
			log.Printf("Starting server on http://localhost%s", server.Addr)
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func startFaucet(ctx context.Context, cfg *config.Configuration) error {
	shutdownTracing, err := initializeTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	db, err := database.NewDataSource(cfg)
	if err != nil {
		return fmt.Errorf("error getting datasource: %v", err)
	}

	redis, err := redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return fmt.Errorf("error connecting to redis: %v", err)
	}
	defer redis.Close()

	client, err := dialSettlement(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	notifier := notification.NewNotifier(cfg.Notification.Slack.WebhookUrl)
	defer notifier.Wait()

	locator := geo.NewLocator(cfg.Geo.Url, cache.NewCache(redis.Client()), time.Duration(cfg.Geo.CacheTTLSec)*time.Second)

	f, err := faucet.NewFaucet(db, client, faucet.WithGeoLocator(locator), faucet.WithNotifier(notifier))
	if err != nil {
		return fmt.Errorf("error creating faucet: %v", err)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if account := f.FundingAccount(); account != "" {
		lease, err := holdFundingLock(ctx, redis, cfg, account)
		if err != nil {
			return err
		}
		if lease != nil {
			defer func() {
				if err := lease.Release(context.Background()); err != nil {
					logrus.WithError(err).Warn("failed to release funding lock")
				}
			}()
			go func() {
				select {
				case <-lease.Lost():
					notifier.NotifyError(fmt.Errorf("funding lock for %s lost, shutting down", account))
					cancel()
				case <-ctx.Done():
				}
			}()
		}
		logrus.WithField("account", account).Info("serving airdrops")
	}

	router := api.NewAPI(f).Router()
	server := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router}
	if cfg.Server.SSL {
		server, err = tlsServer(ctx, router, cfg.Server)
		if err != nil {
			return err
		}
	}
	return run(ctx, server, cfg.Server.SSL)
}

/*
serverCommands returns the Cobra command responsible for starting the faucet.
It connects to the database, Redis and the settlement node before serving HTTP.
*/
func serverCommands(f *faucetInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start faucet server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := startFaucet(ctx, f.cnf); err != nil {
				notification.NewNotifier(f.cnf.Notification.Slack.WebhookUrl).NotifyError(err)
				log.Fatal(err)
			}
		},
	}

	return cmd
}
