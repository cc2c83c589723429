package commands

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd is rulesyncd itself: with no subcommand it starts the RPC server,
// the "small RPC-server binary" the spec's CLI surface describes. Exit
// codes: 0 on clean shutdown, 1 on startup or server error (spec §6).
var rootCmd = &cobra.Command{
	Use:   "rulesyncd",
	Short: "Reconcile AI-assistant rule/command/skill artifacts onto disk",
	Long: `rulesyncd projects rules, commands, and skills from a catalog onto the
filesystem paths each supported AI-assistant tool expects, and serves an
RPC boundary for a desktop shell or other client to drive that process.`,
	RunE: runServe,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/rulesync/config.yaml)")
	rootCmd.Flags().Int("port", 0, "RPC server listen port (default from config, or 8080)")
	rootCmd.PersistentFlags().String("db", "", "path to the catalog database (default from config)")

	viper.BindPFlag("rpc.port", rootCmd.Flags().Lookup("port"))
	viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		viper.AddConfigPath(home + "/.config/rulesync")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("RULESYNC")
	viper.AutomaticEnv()

	viper.ReadInConfig()
}
