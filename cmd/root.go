// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"hermannm.dev/devlog"
)

var (
	configFilePath string
	debug          bool
	logLevel       slog.LevelVar
)

var rootCmd = &cobra.Command{
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	Use:   "sdls-core",
	Short: "CCSDS Space Data Link Security engine: TC frame Apply/Process and SDLS procedures",
	Long: `sdls-core is a thin operations harness over the sdlscore library:
	it loads a mission configuration (managed parameters, SA seed table, master
	keys) and exercises TC Apply/Process against it, and lists SAs and the
	event log. It carries no protocol logic of its own.
`,
}

// Execute adds all child commands to the root command and runs it. Called
// once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{
		Level: &logLevel,
	})))

	rootCmd.PersistentFlags().StringVar(&configFilePath, "config", "", "Path to the mission config file (YAML/JSON/TOML)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Print debug logging")
	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}

func loadViperConfig() error {
	if debug {
		logLevel.Set(slog.LevelDebug)
	}
	path := viper.GetString("config")
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	return viper.ReadInConfig()
}
