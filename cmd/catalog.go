package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vjelic/rocm-jax-glog-fork/catalog"
	"github.com/vjelic/rocm-jax-glog-fork/envconfig"
)

func NewCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the resolved test catalog, one module per line",
		Args:  cobra.NoArgs,
		RunE:  catalogHandler,
	}

	cmd.Flags().String("catalog", envconfig.CatalogFile, "TOML file listing the test modules")
	cmd.Flags().String("provider", envconfig.CatalogProvider, "Executable queried with 'list' for the test modules")
	cmd.Flags().BoolP("single-gpu", "s", false, "Apply the multi-GPU exclusion list")

	return cmd
}

func catalogHandler(cmd *cobra.Command, args []string) error {
	catalogFile, _ := cmd.Flags().GetString("catalog")
	provider, _ := cmd.Flags().GetString("provider")
	singleGPU, _ := cmd.Flags().GetBool("single-gpu")

	source, err := catalog.Select(catalogFile, provider, singleGPU)
	if err != nil {
		return err
	}

	modules, err := source.Modules(cmd.Context())
	if err != nil {
		return err
	}

	for _, module := range modules {
		fmt.Println(module)
	}
	return nil
}
