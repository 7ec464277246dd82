package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/version"
)

const defaultDBPath = "wallnav.db"

type rootFlags struct {
	dbPath  string
	envFile string
}

func newRootCmd() *cobra.Command {
	var rf rootFlags
	root := &cobra.Command{
		Use:           "wallnav",
		Short:         "Reactive wall-following navigation for a mobile robot",
		Long:          "wallnav keeps a wall on the robot's left-hand side, holds for targeting\nand loading-zone events, and records waypoints and map artifacts of each run.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(rf.envFile); err != nil {
				if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
					return err
				}
			}
			return bindEnv(cmd.Flags())
		},
	}
	root.Version = version.String()

	pf := root.PersistentFlags()
	pf.StringVar(&rf.dbPath, "db-path", defaultDBPath, "SQLite database for runs and waypoints (env WALLNAV_DB_PATH; empty disables)")
	pf.StringVar(&rf.envFile, "env-file", ".env", "dotenv file loaded before flags are resolved")

	root.AddCommand(newRunCmd(&rf))
	root.AddCommand(newWaypointsCmd(&rf))
	root.AddCommand(newMigrateCmd(&rf))
	root.AddCommand(newWatchCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// envBindings maps flags to the environment variables that may set them.
var envBindings = map[string]string{
	"db-path":     "WALLNAV_DB_PATH",
	"port":        "WALLNAV_SERIAL_PORT",
	"baud":        "WALLNAV_SERIAL_BAUD",
	"framing":     "WALLNAV_SERIAL_FRAMING",
	"map-dir":     "WALLNAV_MAP_DIR",
	"listen":      "WALLNAV_LISTEN",
	"grpc-listen": "WALLNAV_GRPC_LISTEN",
	"config":      "WALLNAV_CONFIG",
	"no-serial":   "WALLNAV_NO_SERIAL",
	"dev":         "WALLNAV_DEV",
}

// bindEnv fills flags that were not given on the command line from their
// environment variables.
func bindEnv(flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		env, ok := envBindings[f.Name]
		if !ok || f.Changed || err != nil {
			return
		}
		if v, set := os.LookupEnv(env); set {
			if serr := flags.Set(f.Name, v); serr != nil {
				err = serr
				return
			}
			monitoring.Diagf("flag --%s set from %s", f.Name, env)
		}
	})
	return err
}
