// cmd/gpgbridge/root.go
// Root command for the `gpgbridge` CLI. It wires common flags, global
// initialisation (logger, config file) and adds the top-level sub-commands
// in sibling files (descriptor.go, version.go). Build-tag `cli` allows
// excluding the CLI from minimal library-only builds.
//go:build cli
// +build cli

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nimbusrelay/gpgbridge/internal/logging"
	"github.com/nimbusrelay/gpgbridge/pkg/version"
)

var (
	cfgFile string
	logJSON bool
	rootCmd = &cobra.Command{
		Use:   "gpgbridge",
		Short: "Bidirectional bridge for the GnuPG Assuan protocol across a host/guest boundary",
		Long:  `gpgbridge lets a remote GPG client use a host-side GPG agent's private keys without exposing a network socket, copying keys, or exposing passphrases to the remote side.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logging.Initialised() {
				return nil
			}
			return initLogger()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file (YAML/TOML/JSON)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Enable JSON log output (default is human-friendly console)")

	rootCmd.AddCommand(newDescriptorCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute runs the root command, printing and exiting non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "gpgbridge"))
		}
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("GPGBRIDGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logging.Sugar().Infof("using config file: %s", viper.ConfigFileUsed())
	}
}

func initLogger() error {
	cfg := zap.NewProductionConfig()
	if !logJSON {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zap.TimeEncoder(func(t time.Time, enc zap.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(time.RFC3339))
	})

	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	logging.Set(logger)
	logging.Sugar().Infow("gpgbridge starting", "go_version", runtime.Version(), "version", version.String())
	return nil
}
