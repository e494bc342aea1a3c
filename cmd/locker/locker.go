package locker

import (
	// pprof imports
	_ "net/http/pprof"

	"time"

	"github.com/spf13/cobra"

	"github.com/boltbox/boltbox/cmd"
)

var (
	lockerCmd = &cobra.Command{
		Use:   "locker",
		Short: "provides the locker micro-service entrypoint",
	}

	restCmd = &cobra.Command{
		Use:   "rest",
		Short: "provides REST api services",
		Run:   RestRun,
	}
)

func init() {
	lockerCmd.AddCommand(restCmd)

	// add this command as a serve subcommand
	cmd.ServeCmd.AddCommand(lockerCmd)

	// setup the flags
	flagBuilder := cmd.NewFlagBuilder(restCmd)

	flagBuilder.
		String("datastore", "",
			"the datastore for the locker system").
		Bind("datastore").
		Env("DATABASE_URL").
		Require()

	flagBuilder.
		String("signing-secret-key", "",
			"hex encoded secp256k1 secret key used to sign session receipts").
		Bind("signing-secret-key").
		Env("SIGNING_SECRET_KEY").
		Require()

	flagBuilder.
		String("ln-backend", "phoenixd",
			"the lightning backend to use (phoenixd or mock)").
		Bind("ln-backend").
		Env("LN_BACKEND")

	flagBuilder.
		String("phoenixd-server", "http://127.0.0.1:9740",
			"the phoenixd server address").
		Bind("phoenixd-server").
		Env("PHOENIXD_SERVER")

	flagBuilder.
		String("phoenixd-password", "",
			"the phoenixd http api password").
		Bind("phoenixd-password").
		Env("PHOENIXD_PASSWORD")

	flagBuilder.
		Duration("open-confirm-window", 5*time.Minute,
			"how long an open confirmation timestamp stays acceptable").
		Bind("open-confirm-window").
		Env("OPEN_CONFIRM_WINDOW")
}
