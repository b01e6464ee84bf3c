package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/born-ml/membuf/internal/alloc"
	"github.com/born-ml/membuf/internal/config"
	"github.com/born-ml/membuf/internal/logging"
)

// app carries state shared by subcommands once the root has loaded config.
type app struct {
	configPath string
	logLevel   string
	memory     string

	cfg *config.Config
	log *zap.Logger
}

func newCLI() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "membuf",
		Short:         "Inspect and convert typed buffer files",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML config file (defaults plus BORN_* environment when empty)")
	flags.StringVar(&a.logLevel, "log-level", "", "Override the configured log level")
	flags.StringVar(&a.memory, "memory", "", "Override the allocator memory type (cpu, pinned, gpu)")

	rootCmd.AddCommand(
		newInspectCmd(a),
		newPackCmd(a),
		newExportCmd(a),
		newDevicesCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// setup loads the configuration, applies environment and flag overrides, and
// installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.memory != "" {
		cfg.Allocator.Memory = a.memory
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	logging.SetLogger(log)

	a.cfg = cfg
	a.log = log
	log.Debug("configuration loaded",
		zap.String("command", cmd.Name()),
		zap.String("memory", cfg.Allocator.Memory),
		zap.Int("pool_max_blocks", cfg.Allocator.PoolMaxBlocks))
	return nil
}

// allocator builds the configured allocator.
func (a *app) allocator() (alloc.Allocator, error) {
	mem, err := a.cfg.MemoryType()
	if err != nil {
		return nil, err
	}
	al, err := alloc.New(alloc.Options{
		Memory:        mem,
		PinnedLock:    a.cfg.Pinned.Lock,
		PoolMaxBlocks: a.cfg.Allocator.PoolMaxBlocks,
	})
	if err != nil {
		return nil, fmt.Errorf("%s allocator: %w", mem, err)
	}
	return al, nil
}

func closeAllocator(al alloc.Allocator, errp *error) {
	*errp = errors.Join(*errp, al.Close())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "membuf %s\n", version)
		},
	}
}
