package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pooledinv/internal/config"
	"pooledinv/internal/ingest"
	"pooledinv/internal/lock"
	"pooledinv/internal/logging"
)

var (
	configPath  string
	profileName string
	dbPath      string
	verbose     bool
	logJSON     bool

	log *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:           "pooledinv",
	Short:         "Ingest raw inventory files into the shared pooled inventory database",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(logging.Options{Verbose: verbose, JSON: logJSON})
		if err != nil {
			return fmt.Errorf("initialising logger: %w", err)
		}
		log = l
		return nil
	},
}

// Execute runs the CLI and exits with the code ExitCode assigns to any error.
func Execute() {
	err := rootCmd.Execute()
	if log != nil {
		_ = log.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "\nERROR:", err)
		os.Exit(ExitCode(err))
	}
}

// ExitCode maps an error to the process exit status:
// 2 for a missing database, 3 for a held lock, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ingest.ErrDatabaseMissing):
		return 2
	case errors.Is(err, lock.ErrAlreadyLocked):
		return 3
	default:
		return 1
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to local_paths.yaml (default: $"+config.EnvVar+" or config/local_paths.yaml above the working directory)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Profile name from local_paths.yaml (e.g. tom, sarka)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path; overrides the profile's paths.inventory_db.rel_db")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log JSON lines to stderr even on a terminal")
}

func loadConfig() (*config.Config, error) {
	path, err := config.Discover(configPath)
	if err != nil {
		return nil, err
	}
	log.Debugw("using config", "path", path)
	return config.Load(path)
}

func requireProfile() error {
	if profileName == "" {
		return errors.New("--profile is required unless --db (and --raw for ingest) are given")
	}
	return nil
}

// ResolveDB returns the database path: --db if set, otherwise the profile's.
func ResolveDB() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	if err := requireProfile(); err != nil {
		return "", err
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.ResolveDB(profileName)
}

// ResolvePaths returns the database and raw directory for sourceType. Each
// non-empty override wins over the profile; the config is only read when one
// of them is missing.
func ResolvePaths(sourceType, rawOverride string) (config.Paths, error) {
	if dbPath != "" && rawOverride != "" {
		return config.Paths{DBPath: dbPath, RawDir: rawOverride}, nil
	}
	if err := requireProfile(); err != nil {
		return config.Paths{}, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return config.Paths{}, err
	}
	paths, err := cfg.Resolve(profileName, sourceType)
	if err != nil {
		return config.Paths{}, err
	}
	if dbPath != "" {
		paths.DBPath = dbPath
	}
	if rawOverride != "" {
		paths.RawDir = rawOverride
	}
	return paths, nil
}
