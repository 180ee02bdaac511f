package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/surfswift213us/coinblesk-server/chainwallet"
	"github.com/surfswift213us/coinblesk-server/services/account"
	"github.com/surfswift213us/coinblesk-server/services/forex"
	"github.com/surfswift213us/coinblesk-server/services/ledger"
	"github.com/surfswift213us/coinblesk-server/services/lifecycle"
	"github.com/surfswift213us/coinblesk-server/services/pot"
	"github.com/surfswift213us/coinblesk-server/services/validator"
	"github.com/surfswift213us/coinblesk-server/settings"
	sqlstore "github.com/surfswift213us/coinblesk-server/stores/account/sql"
	"github.com/surfswift213us/coinblesk-server/ulogger"
)

// Name used by build script for the binaries. (Please keep on single line)
const progname = "coinblesk-server"

// Version & commit strings injected at build with -ldflags -X...
var version string
var commit string

func init() {
	gocore.SetInfo(progname, version, commit)
}

func main() {
	logger := ulogger.New(progname)
	tSettings := settings.NewSettings()

	logger.Infof("starting %s %s (%s) on %s", progname, version, commit, tSettings.Network)

	prometheusEndpoint, ok := gocore.Config().Get("prometheusEndpoint")
	if ok && prometheusEndpoint != "" {
		logger.Infof("starting prometheus endpoint on %s", prometheusEndpoint)
		http.Handle(prometheusEndpoint, promhttp.Handler())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	store, err := sqlstore.New(logger.New("store"), tSettings.AccountStoreURL, tSettings)
	if err != nil {
		logger.Fatalf("failed to open account store: %v", err)
	}
	defer store.Close()

	// The wallet seam for a node-backed implementation. The in-process wallet
	// only serves local development, it holds no real chain state.
	wallet := chainwallet.NewMock()
	logger.Warnf("running with the in-process wallet, no transactions reach a real network")

	rates := forex.New(logger.New("forex"), tSettings, forex.BitstampFetcher(&http.Client{Timeout: 10 * time.Second}))

	channelValidator := validator.New(logger.New("valid"), tSettings, wallet, rates)
	accountService := account.New(logger.New("account"), tSettings, store, wallet)
	ledgerService := ledger.New(logger.New("ledger"), tSettings, store, channelValidator)
	lifecycleService := lifecycle.New(logger.New("lifecycle"), tSettings, store, wallet)
	ledgerService.SetCloseTrigger(lifecycleService)

	potAccountant, err := pot.New(logger.New("pot"), tSettings, store, wallet)
	if err != nil {
		logger.Fatalf("failed to start pot accountant: %v", err)
	}

	lifecycleService.Start(ctx)

	if tSettings.Pot.SolvencyCheckEnabled {
		go func() {
			ticker := time.NewTicker(tSettings.Pot.SolvencyCheckInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := potAccountant.CheckSolvency(ctx); err != nil {
						logger.Errorf("solvency check failed: %v", err)
					}
				}
			}
		}()
	}

	if total, err := accountService.TotalVirtualBalance(ctx); err == nil {
		logger.Infof("ledger owes %d satoshis across all accounts", total)
	}

	select {
	case <-interrupt:
	case <-ctx.Done():
	}

	logger.Infof("received shutdown signal")

	cancel()
	lifecycleService.Stop()
}
