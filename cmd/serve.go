//
// See the file COPYRIGHT for copyright information.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/api"
	"github.com/rowan-franciscus/onus-health-application-sub001/conf"
	"github.com/rowan-franciscus/onus-health-application-sub001/directory"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/clock"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/log"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/rand"
	"github.com/rowan-franciscus/onus-health-application-sub001/store"
	"github.com/rowan-franciscus/onus-health-application-sub001/store/authlog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	envfileFlagName    = "envfile"
	envFileDefaultName = ".env"

	printConfigFlagName = "print-config"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Launch the Onus server",
	Long: "Launch the Onus server\n\n" +
		"Configuration starts from built-in defaults, and can be overridden by a .env file and environment variables.",
	Run: runServer,
}

func runServer(cmd *cobra.Command, args []string) {
	onusCfg := mustInitConfig(envFilename)
	os.Exit(runServerInternal(context.Background(), onusCfg, printConfig, make(chan string, 1)))
}

// runServerInternal starts the Onus server and blocks until it is terminated.
//
// The supplied channel will be provided with the address of the server at the time when
// the server is started and ready to accept connections.
func runServerInternal(
	ctx context.Context, unvalidatedCfg *conf.OnusConfig,
	printConfig bool, listeningAddr chan<- string,
) (exitCode int) {
	fillDevSecrets(unvalidatedCfg)
	must(unvalidatedCfg.Validate())
	onusCfg := unvalidatedCfg

	configureLogger(onusCfg)

	if printConfig {
		stderrPrintf("Here's the final redacted OnusConfig:\n\n%v\n\n", onusCfg.PrintRedacted())
	}

	clk := clock.Real{}
	onusDB, err := store.SqlDB(ctx, onusCfg.Store, true)
	must(err)
	defer shut(onusDB)

	var ledger store.Ledger
	if onusCfg.Store.Type == conf.DBStoreTypeNoOp {
		ledger = store.NewMemoryLedger(clk)
	} else {
		ledger = store.NewSQLLedger(onusDB, clk)
	}

	userStore := directory.NewUserStore(mustQuerier(ctx, onusCfg, onusDB), onusCfg.Directory.InMemoryCacheTTL, clk)

	issuer, err := authz.NewIssuer(authz.IssuerConfig{
		AccessSecret:         onusCfg.Core.AccessTokenSecret,
		RefreshSecret:        onusCfg.Core.RefreshTokenSecret,
		AccessTokenLifetime:  onusCfg.Core.AccessTokenLifetime,
		RefreshTokenLifetime: onusCfg.Core.RefreshTokenLifetime,
	}, userStore, ledger)
	must(err)

	// A timed-out session has to stay timed out for as long as its refresh
	// token could still be presented.
	idle := api.NewIdleTracker(onusCfg.Session.Timeout, onusCfg.Core.RefreshTokenLifetime, clk)

	authLog := authlog.NewLogger(ctx, store.DB{DB: onusDB}, onusCfg.Core.AuthLogEnabled, false)
	defer authLog.Close()

	notifyCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventSource := api.NewEventSourcerer(userStore)
	mux := api.AddToMux(nil, eventSource, onusCfg, issuer, userStore, idle, authLog)

	s := &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// This needs to be long to support long-lived EventSource calls.
		// After this duration, a client will be disconnected and forced
		// to reconnect.
		WriteTimeout:   30 * time.Minute,
		MaxHeaderBytes: 1 << 20,
	}
	s.RegisterOnShutdown(func() {
		eventSource.Server.Close()
	})

	addr := fmt.Sprintf("%v:%v", onusCfg.Core.Host, onusCfg.Core.Port)
	listener, err := net.Listen("tcp", addr)
	must(err)
	addr = fmt.Sprintf("%v:%v", onusCfg.Core.Host, listener.Addr().(*net.TCPAddr).Port)

	group, groupCtx := errgroup.WithContext(notifyCtx)
	group.Go(func() error {
		err := s.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Serve", "err", err)
		return err
	})
	group.Go(func() error {
		runPruner(groupCtx, "refresh ledger", onusCfg.Store.LedgerPruneInterval, ledger.Prune)
		return nil
	})
	group.Go(func() error {
		runPruner(groupCtx, "idle tracker", onusCfg.Session.IdlePruneInterval, func(context.Context) (int64, error) {
			return int64(idle.Prune()), nil
		})
		return nil
	})

	slog.Info("Onus server is ready for connections", "addr", addr)

	listeningAddr <- addr
	close(listeningAddr)
	// The goroutine will hang here until the NotifyContext is done, or the
	// server fails on its own.
	<-groupCtx.Done()
	stop()
	slog.Error("Shutting down gracefully, press Ctrl+C again to force")

	// Tell the server to shut down, giving it this much time to do so gracefully.
	// Don't parent this ctx on the notifyCtx, because it's already done.
	timeoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err = s.Shutdown(timeoutCtx)
	slog.Error("Server shut down", "err", err)
	if err = group.Wait(); err != nil {
		slog.Error("Server stopped with an error", "err", err)
	}
	return 69
}

// fillDevSecrets makes up signing secrets for a dev server that has none.
// Tokens signed with them are useless after a restart.
func fillDevSecrets(cfg *conf.OnusConfig) {
	if cfg.Core.Deployment != conf.DeploymentTypeDev {
		return
	}
	if cfg.Core.AccessTokenSecret == "" {
		slog.Warn("No access token secret configured, generating a random one for this dev server")
		cfg.Core.AccessTokenSecret = rand.Secret()
	}
	if cfg.Core.RefreshTokenSecret == "" {
		slog.Warn("No refresh token secret configured, generating a random one for this dev server")
		cfg.Core.RefreshTokenSecret = rand.Secret()
	}
}

func mustQuerier(ctx context.Context, cfg *conf.OnusConfig, db *sql.DB) directory.Querier {
	switch cfg.Directory.Directory {
	case conf.DirectoryTypeTestUsers:
		q, err := directory.NewTestUsersStore(cfg.Directory.TestUsers)
		must(err)
		return q
	case conf.DirectoryTypeDB:
		fallthrough
	default:
		if len(cfg.Directory.TestUsers) > 0 {
			must(directory.SeedTestUsers(ctx, db, cfg.Directory.TestUsers))
		}
		return directory.NewDBQuerier(db)
	}
}

// runPruner calls prune every interval until ctx is done.
func runPruner(ctx context.Context, name string, interval time.Duration, prune func(context.Context) (int64, error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := prune(ctx)
			if err != nil {
				slog.Error("Prune failed", "what", name, "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("Pruned", "what", name, "count", n)
			}
		}
	}
}

func configureLogger(onusCfg *conf.OnusConfig) {
	var logLevel slog.Level
	must(logLevel.UnmarshalText([]byte(onusCfg.Core.LogLevel)))
	logger := slog.New(
		log.New(
			&slog.HandlerOptions{Level: logLevel},
		),
	)
	slog.SetDefault(logger)
}

var (
	envFilename string
	printConfig bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&envFilename, envfileFlagName, envFileDefaultName,
		"An env file from which to load Onus server configuration. "+
			"Defaults to '.env' in the current directory")
	serveCmd.Flags().BoolVar(&printConfig, printConfigFlagName, true,
		"Whether to print the redacted OnusConfig on server startup")
}

// must logs an error and panics. This should only be done for
// startup errors, not after the server is up and running.
func must(err error) {
	if err != nil {
		panic("got a startup error: " + err.Error())
	}
}

func shut(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Error("Failed to close DB", "err", err)
	}
}

func stderrPrintf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format, args...)
}
