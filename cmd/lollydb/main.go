package main

import (
	"fmt"
	"os"

	"github.com/franz/lollydb/internal/localized"
	"github.com/franz/lollydb/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "lollydb",
		Short: "Inspect and maintain a Lollypop music database",
		Long: `lollydb opens the Lollypop music store (lollypop.db, cache_v1.db,
playlists.db and history.db), upgrades their schemas, ingests a music
directory and exposes the store's queries and maintenance operations.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/lollydb/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory holding the database files (default is $XDG_DATA_HOME/lollypop)")
	rootCmd.PersistentFlags().String("language", "", "BCP-47 language used for sorting (default is root collation)")
	rootCmd.PersistentFlags().Bool("show-sortnames", false, "display artists by sortname")
	rootCmd.PersistentFlags().Int("history-limit", 0, "maximum rows kept in history.db (default 20000)")
	rootCmd.PersistentFlags().Bool("strict-migrations", false, "abort an upgrade on the first failing step")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	for _, name := range []string{"data-dir", "language", "show-sortnames", "history-limit",
		"strict-migrations", "verbose", "quiet"} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables that match
	viper.SetEnvPrefix("LOLLYDB")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

// setup applies the ambient configuration before any command runs
func setup(cmd *cobra.Command, args []string) error {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
	if err := localized.SetLanguage(util.GetLanguage()); err != nil {
		return fmt.Errorf("%w: language: %v", util.ErrInvalidConfig, err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
