package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cbodonnell/tabletop/pkg/config"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RootOptions holds the state shared by every subcommand.
type RootOptions struct {
	ConfigPath string
	viper      *viper.Viper
	Config     *config.Config
}

// NewRootCommand creates the tabletop command with its host and join subcommands.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{viper: viper.New()})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tabletop",
		Short:         "Shared virtual tabletop",
		Long:          "Host a tabletop scene or join one hosted by another participant.",
		Version:       version.Get(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.viper, opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.Config = cfg
			return setupLogger(cfg.LogLevel)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", ".", "directory containing tabletop.yaml")
	flags.String("log-level", "info", "log level (error|warn|info|debug|trace)")
	flags.String("peer-id", "", "local participant id, random when empty")
	flags.String("api-addr", ":8080", "address of the local HTTP API")
	flags.String("scene-id", "default", "scene to host or join")
	flags.Duration("tick-interval", 20*time.Millisecond, "how often inbound events are applied")
	bindFlags(opts.viper, flags, map[string]string{
		config.KeyLogLevel:     "log-level",
		config.KeyPeerID:       "peer-id",
		config.KeyAPIAddr:      "api-addr",
		config.KeySceneID:      "scene-id",
		config.KeyTickInterval: "tick-interval",
	})

	cmd.AddCommand(NewHostCommand(opts))
	cmd.AddCommand(NewJoinCommand(opts))

	return cmd
}

// bindFlags binds flags to config keys. Only flags set on the
// command line override the file and environment.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("Failed to bind flag %s: %v", name, err))
		}
	}
}

func setupLogger(level string) error {
	parsedLogLevel, err := log.ParseLogLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)
	return nil
}
