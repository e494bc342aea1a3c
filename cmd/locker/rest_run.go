package locker

import (
	"context"
	"net/http"
	// pprof imports
	_ "net/http/pprof"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/boltbox/boltbox/cmd"
	"github.com/boltbox/boltbox/libs/clients/ln"
	appctx "github.com/boltbox/boltbox/libs/context"
	lockersvc "github.com/boltbox/boltbox/services/locker"
)

// RestRun - Main entrypoint of the REST subcommand
// This function takes a cobra command and starts up the
// locker rest microservice.
func RestRun(command *cobra.Command, args []string) {
	ctx := command.Context()
	logger, err := appctx.GetLogger(ctx)
	cmd.Must(err)

	// add profiling flag to enable profiling routes
	if viper.GetString("pprof-enabled") != "" {
		// pprof attaches routes to default serve mux
		// host:6061/debug/pprof/
		go func() {
			logger.Error().Err(http.ListenAndServe(":6061", http.DefaultServeMux))
		}()
	}

	// add our command line params to context
	ctx = context.WithValue(ctx, appctx.SigningSecretKeyCTXKey, viper.GetString("signing-secret-key"))
	ctx = context.WithValue(ctx, appctx.PhoenixdServerCTXKey, viper.GetString("phoenixd-server"))
	ctx = context.WithValue(ctx, appctx.PhoenixdPasswordCTXKey, viper.GetString("phoenixd-password"))
	ctx = context.WithValue(ctx, appctx.OpenConfirmWindowCTXKey, viper.GetDuration("open-confirm-window"))

	datastore, err := lockersvc.NewPostgres(viper.GetString("datastore"), true, "locker_db")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize datastore")
	}
	ctx = context.WithValue(ctx, appctx.DatastoreCTXKey, datastore)

	var lnClient ln.Client
	switch viper.GetString("ln-backend") {
	case "mock":
		logger.Warn().Msg("using the mock lightning backend, all invoices settle instantly")
		lnClient = ln.NewMockBackend()
	default:
		lnClient, err = ln.NewPhoenixd(
			viper.GetString("phoenixd-server"),
			viper.GetString("phoenixd-password"))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize phoenixd client")
		}
	}
	ctx = context.WithValue(ctx, appctx.LNClientCTXKey, lnClient)

	s, err := lockersvc.InitService(ctx, datastore, lnClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize locker service")
	}

	// do rest endpoints
	r := cmd.SetupRouter(ctx)
	r.Mount("/v1/lockers", lockersvc.Router(s))
	r.Mount("/v1/receipts", lockersvc.ReceiptRouter(s))

	// make sure exceptions go to sentry
	defer sentry.Flush(time.Second * 2)

	srv := http.Server{
		Addr:         viper.GetString("address"),
		Handler:      chi.ServerBaseContext(ctx, r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	if err = srv.ListenAndServe(); err != nil {
		sentry.CaptureException(err)
		logger.Fatal().Err(err).Msg("HTTP server start failed!")
	}
}
