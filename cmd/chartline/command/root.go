package command

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/chartline-org/chartline/api"
)

// Run executes a given function with dependencies supplied by the service DI
// graph. `f` must return an error or nothing.
func Run(f interface{}, opts ...fx.Option) error {
	deps := append(opts, api.Dependencies()...)
	deps = append(deps, fx.NopLogger, fx.Invoke(f))

	app := fx.New(deps...)
	if err := app.Err(); err != nil {
		return err
	}

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		return err
	}
	return app.Stop(ctx)
}

var rootCmd = &cobra.Command{
	Use:   "chartline",
	Short: "Helper tool to inspect and manage clinical records",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
