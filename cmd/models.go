package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shouni/go-manga-studio/internal/builder"
)

// modelsCmd は、ティアで利用できるモデルを一覧表示するのだ。
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "ティアで利用できるモデルを一覧表示するのだ。",
	RunE:  modelsCommand,
}

func modelsCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	appCtx, t, err := newApp()
	if err != nil {
		return err
	}
	backend, err := builder.BuildBackend(ctx, appCtx, "")
	if err != nil {
		return err
	}
	coord, err := builder.BuildCoordinator(ctx, appCtx, backend.Service, t)
	if err != nil {
		return err
	}

	def, hasDefault := coord.DefaultModel()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMIN TIER\t")
	for _, m := range coord.AllowedModels() {
		mark := ""
		if hasDefault && m.ID == def.ID {
			mark = "(default)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.DisplayName, m.MinTier, mark)
	}
	if !hasDefault {
		fmt.Fprintf(w, "ティア %s で利用できるモデルはないのだ。\n", t)
	}
	return w.Flush()
}
