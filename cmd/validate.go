package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/classify"
	"github.com/papapumpkin/pulsar/internal/history"
	"github.com/papapumpkin/pulsar/internal/ui"
	"github.com/papapumpkin/pulsar/internal/workspace"
)

var errValidation = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that cargo, the repository, the workspace and the classifier are usable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		printer := ui.New()
		ok := true

		cargo := &workspace.CargoLoader{CargoPath: cfg.CargoPath, WorkDir: cfg.WorkDir}
		ok = printer.Check("cargo found", cargo.Validate(ctx)) && ok

		repo, err := history.Open(cfg.WorkDir)
		ok = printer.Check("git repository opens", err) && ok
		if err == nil {
			_, err = repo.Resolve(cfg.History.Head)
			ok = printer.Check(fmt.Sprintf("%s resolves", cfg.History.Head), err) && ok

			g, err := loadGraph(ctx, cfg, repo.Root())
			if ok = printer.Check("workspace metadata loads", err) && ok; err == nil {
				printer.Info(fmt.Sprintf("%d package(s), %d top-level, %d nesting pair(s)", g.Len(), len(g.TopLevel()), len(g.Nesting())))
			}
		}

		err = classify.Validate(cfg.Classifier.Kind, cfg.Classifier.Path, cfg.Classifier.Args)
		ok = printer.Check("classifier loads", err) && ok

		if !ok {
			return errValidation
		}
		printer.Success("ready to plan")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
