package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webagents/internal/observability"
	"github.com/xkilldash9x/webagents/internal/shopsim"
)

func newShopCmd() *cobra.Command {
	shopCmd := &cobra.Command{
		Use:   "shop",
		Short: "WebShop simulator commands",
	}
	shopCmd.AddCommand(newShopServeCmd())
	return shopCmd
}

func newShopServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the WebShop simulator until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			catalog := shopsim.DefaultCatalog()
			if cfg.ShopSim.CatalogFile != "" {
				if catalog, err = shopsim.LoadCatalog(cfg.ShopSim.CatalogFile); err != nil {
					return err
				}
			}

			return shopsim.NewServer(catalog, logger).Serve(ctx, cfg.ShopSim.Addr)
		},
	}

	cmd.Flags().String("addr", ":3000", "Listen address")
	cmd.Flags().String("catalog", "", "JSON catalog file (default: the bundled catalog)")
	bindFlag(cmd, "addr", "shopsim.addr")
	bindFlag(cmd, "catalog", "shopsim.catalog_file")
	return cmd
}
