package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"satfetch/internal/search"
)

func newCollectionsCmd(ro *RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List every collection in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, err := ro.buildContext(true)
			if err != nil {
				return err
			}
			defer appCtx.Logger.Close()

			svc := search.NewService(appCtx.Catalog, appCtx.Logger)
			collections, err := svc.ListCollections(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range collections {
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %s\n", c.ID, c.Title)
			}
			return nil
		},
	}
}

func newInfoCmd(ro *RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "info <collection-id>",
		Short: "Show collection details and its searchable filter keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, err := ro.buildContext(true)
			if err != nil {
				return err
			}
			defer appCtx.Logger.Close()

			svc := search.NewService(appCtx.Catalog, appCtx.Logger)
			detail, err := svc.CollectionInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:       %s\n", detail.ID)
			fmt.Fprintf(out, "Title:    %s\n", detail.Title)
			if detail.Abstract != "" {
				fmt.Fprintf(out, "Abstract: %s\n", detail.Abstract)
			}
			if len(detail.AllowedFilters) > 0 {
				fmt.Fprintf(out, "Filters:  %s\n", strings.Join(detail.AllowedFilters, ", "))
			} else {
				fmt.Fprintln(out, "Filters:  (not disclosed by the catalog)")
			}
			return nil
		},
	}
}
