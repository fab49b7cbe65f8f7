package cmd

import (
	"fmt"

	"github.com/SiliconJelly/DubAI/internal/app"
	"github.com/SiliconJelly/DubAI/internal/config"
	"github.com/SiliconJelly/DubAI/internal/tts"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "models",
	Short: "List the model catalog",
	RunE:  listModels,
}

func init() {
	flags := Cmd.Flags()

	flags.Bool("downloaded", false, "Only show models already present in the local cache")
}

func listModels(cmd *cobra.Command, _ []string) error {
	downloadedOnly, err := cmd.Flags().GetBool("downloaded")
	if err != nil {
		return err
	}

	a, err := app.NewApp(config.GetConfig(), app.WithRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	registry := a.Registry()
	ids := registry.Catalog()

	shown := 0
	for _, id := range ids {
		downloaded := registry.IsDownloaded(id)
		if downloadedOnly && !downloaded {
			continue
		}

		marker := " "
		if downloaded {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, id)
		shown++
	}

	lang := a.Config().Language
	matching := tts.FilterByLanguage(ids, lang)
	fmt.Printf("\n%d of %d models shown, %d matching language %q (* = downloaded)\n",
		shown, len(ids), len(matching), lang)

	return nil
}
