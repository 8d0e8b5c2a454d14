package cmd

import (
	"fmt"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cfgFile is the config file path given on the command line.
var cfgFile string

const rootCmdLongDesc = `voteledger records votes on a tamper-evident, hash-linked ledger.

Every accepted ballot is sealed into a block whose hash covers the previous block,
so any later edit to the persisted chain is detected by "voteledger validate".`

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "voteledger",
	Short:         "Tamper-evident vote ledger",
	Long:          rootCmdLongDesc,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.voteledger.yaml)")
	flags.String("storage", "data", "directory for the chain and voter registry")
	flags.Int("difficulty", 2, "proof-of-work difficulty in leading zero hex digits (0 disables)")
	flags.Duration("mining-budget", 0, "wall-clock limit for sealing one block (0 is unlimited)")
	flags.String("load-policy", "fallback", "what to do with an unusable chain file: fallback or fail-fast")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-dev", false, "human readable development logging")
	flags.StringSlice("candidates", nil, "initial candidates as name:party")
	flags.Int("backups", 5, "number of previous chain files to keep")

	for _, key := range []string{"storage", "difficulty", "mining-budget", "load-policy", "log-level", "log-dev", "candidates", "backups"} {
		viper.BindPFlag(configKey(key), flags.Lookup(key))
	}

	rootCmd.AddCommand(serveCmd, validateCmd, tallyCmd, keygenCmd)
}

// configKey maps a flag name to its config and environment key.
func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory and the working directory with name ".voteledger".
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".voteledger")
	}

	viper.SetEnvPrefix("VOTELEDGER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
