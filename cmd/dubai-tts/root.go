package cmd

import (
	"fmt"
	"os"

	// Subcommands
	download "github.com/SiliconJelly/DubAI/cmd/dubai-tts/download"
	models "github.com/SiliconJelly/DubAI/cmd/dubai-tts/models"
	run "github.com/SiliconJelly/DubAI/cmd/dubai-tts/run"
	"github.com/SiliconJelly/DubAI/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = &cobra.Command{
	Use:   "dubai-tts",
	Short: "DubAI TTS bridge CLI",
	Long:  "The speech-synthesis side of DubAI: a long-lived bridge process that loads TTS models and renders dubbed audio for the host application over line-delimited JSON",

	SilenceUsage:  true,
	SilenceErrors: true,

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		return config.InitConfig()
	},
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()

	pflags.String("dubai-home", "", "Path to the dubai home directory")
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("env-file", "", "Path to the env file")

	// Bind flags to viper
	viper.BindPFlag("dubai_home", pflags.Lookup("dubai-home"))
	viper.BindPFlag("config_file", pflags.Lookup("config-file"))
	viper.BindPFlag("env_file", pflags.Lookup("env-file"))

	// Add subcommands
	Cmd.AddCommand(run.Cmd, models.Cmd, download.Cmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}
