package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/SiliconJelly/DubAI/internal/app"
	"github.com/SiliconJelly/DubAI/internal/bridge"
	"github.com/SiliconJelly/DubAI/internal/config"
	"github.com/SiliconJelly/DubAI/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Start the stdio TTS bridge",
	RunE:  runBridge,
}

func init() {
	flags := Cmd.Flags()

	flags.Bool("mock", false, "Use the mock synthesis backend (no inference runtime required)")
	flags.String("backend", "", "Synthesis backend: 'sherpa' or 'mock'")
	flags.String("environment", "", "Environment configuration: 'dev', 'prod' or 'test'")
	flags.String("language", "", "Target dubbing language code")
	flags.StringSlice("warmup-models", []string{}, "Registry models to prefetch before the bridge starts reading requests")

	viper.BindPFlag("backend", flags.Lookup("backend"))
	viper.BindPFlag("environment", flags.Lookup("environment"))
	viper.BindPFlag("language", flags.Lookup("language"))
	viper.BindPFlag("warmup_models", flags.Lookup("warmup-models"))
}

func runBridge(cmd *cobra.Command, _ []string) error {
	mock, err := cmd.Flags().GetBool("mock")
	if err != nil {
		return err
	}

	// A backend that cannot come up is the one failure reported on the
	// protocol stream before the ready handshake.
	a, err := app.NewApp(config.GetConfig(), app.WithRegistry(), app.WithBackend(mock))
	if err != nil {
		bridge.EmitInitError(os.Stdout, err)
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(a.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := a.Config()
	if len(cfg.WarmupModels) > 0 && a.Backend().Name() != "mock" {
		if err := a.Registry().Prefetch(ctx, cfg.WarmupModels); err != nil {
			logger.Warn("Warmup prefetch failed", err)
		}
	}

	return bridge.New(a.Backend(), a.Logger).Run(ctx)
}
