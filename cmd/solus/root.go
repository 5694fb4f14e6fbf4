package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/solus-ai/solus/config"
)

const longRoot = `Solus is a retrieval-augmented chat backend.

Every request is embedded, matched against the caller's past exchanges,
answered by a language model with those memories in context, and then stored
so later requests can recall it.

Configuration is read from defaults, an optional YAML file, SOLUS_*
environment variables (a .env file is loaded first) and flags.`

// app carries state shared by all commands.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logFile *os.File
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "solus",
		Short:         "Retrieval-augmented chat backend with per-user memory",
		Long:          longRoot,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logFile != nil {
				_ = a.logFile.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().String("memory-path", "", "memory snapshot directory")
	bindFlags(a.v, root.PersistentFlags(), map[string]string{
		"log.level":   "log-level",
		"memory.path": "memory-path",
	})

	root.AddCommand(newServeCmd(a), newMemoryCmd(a))
	return root
}

// init loads .env and configuration and sets up logging.
func (a *app) init() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	return a.setupLogging(cfg.Log)
}

func (a *app) setupLogging(cfg config.LogConfig) error {
	level, err := log.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	if cfg.File == "" {
		return nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	a.logFile = f
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// bindFlags binds each config key to the named flag, so a flag set on the
// command line overrides file and environment values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if f := flags.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}
