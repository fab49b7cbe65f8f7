package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/SiliconJelly/DubAI/internal/app"
	"github.com/SiliconJelly/DubAI/internal/config"
	"github.com/SiliconJelly/DubAI/pkg/logger"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "download [model-id...]",
	Short: "Prefetch registry models into the local cache",
	RunE:  downloadModels,
}

func init() {
	flags := Cmd.Flags()

	flags.Bool("all", false, "Download every model in the catalog")
}

func downloadModels(cmd *cobra.Command, args []string) error {
	all, err := cmd.Flags().GetBool("all")
	if err != nil {
		return err
	}

	a, err := app.NewApp(config.GetConfig(), app.WithRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	ids := args
	if all {
		ids = a.Registry().Catalog()
	}
	if len(ids) == 0 {
		return fmt.Errorf("no models requested: pass model ids or --all")
	}

	ctx, stop := signal.NotifyContext(a.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Prefetching models", len(ids))
	if err := a.Registry().Prefetch(ctx, ids); err != nil {
		logger.Error("Prefetch failed", err)
		return err
	}

	return nil
}
