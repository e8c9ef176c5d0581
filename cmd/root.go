package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ragflow/internal/config"
	"ragflow/internal/logger"
)

// configKey is the flag annotation naming the koanf path a flag overrides.
const configKey = "ragflow_config_key"

var errNoCommand = errors.New("a command is required")

var (
	flagEnvFile string
	flagDB      string
	flagLevel   string
	flagJSON    bool

	// cfg is resolved once per invocation before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "ragflow",
	Short:         "Index documents and answer questions about them with RAG",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = cmd.Help()
		return errNoCommand
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = loaded

		log := logger.New(&logger.Config{
			Level:      logger.ParseLevel(cfg.Log.Level),
			Output:     os.Stderr,
			JSON:       cfg.Log.JSON,
			TimeFormat: logger.DefaultConfig().TimeFormat,
		})
		logger.SetDefault(log)
		cmd.SetContext(logger.ContextWithLogger(cmd.Context(), log))
		return nil
	},
}

// loadConfig layers the flags the user actually set over the environment and
// the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	overrides := make(map[string]any)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if keys, ok := f.Annotations[configKey]; ok && len(keys) > 0 {
			overrides[keys[0]] = f.Value.String()
		}
	})

	var opts []config.Option
	if flagEnvFile != "" {
		opts = append(opts, config.WithEnvFiles(flagEnvFile))
	}
	return config.NewLoader(opts...).Load(overrides)
}

// bindFlag ties a flag to the configuration path it overrides.
func bindFlag(flags *pflag.FlagSet, name, key string) {
	if err := flags.SetAnnotation(name, configKey, []string{key}); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errNoCommand) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagEnvFile, "env-file", "", "dotenv file to read (default .env)")
	pf.StringVar(&flagDB, "db", "", "database path (default ./data/ragflow.db)")
	pf.StringVar(&flagLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVar(&flagJSON, "log-json", false, "emit logs as JSON")
	bindFlag(pf, "db", "store.path")
	bindFlag(pf, "log-level", "log.level")
	bindFlag(pf, "log-json", "log.json")
}
