package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"satfetch/internal/pipeline"
	"satfetch/internal/search"
)

func newSearchCmd(ro *RootOpts) *cobra.Command {
	var (
		limit     int
		countOnly bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run the configured searches without downloading anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, err := ro.buildContext(false)
			if err != nil {
				return err
			}
			defer appCtx.Logger.Close()

			svc := search.NewService(appCtx.Catalog, appCtx.Logger)
			out := cmd.OutOrStdout()

			for _, job := range appCtx.Config.Jobs {
				if countOnly {
					total, err := svc.Count(cmd.Context(), job.Collection, job.Filters)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s: %d matching item(s)\n", job.Name, total)
					continue
				}

				effective := job.Limit
				if cmd.Flags().Changed("limit") {
					effective = limit
				}
				if effective == 0 {
					effective = -1
				}
				products, err := svc.IterProducts(cmd.Context(), job.Collection, job.Filters, effective)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d item(s)\n", job.Name, len(products))
				for _, p := range products {
					fmt.Fprintf(out, "  %s  %.1f KB\n", p.ID(), p.SizeKB())
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Cap the number of results per job")
	cmd.Flags().BoolVar(&countOnly, "count-only", false, "Print totals only, fetching no item metadata")
	return cmd
}

func newDownloadCmd(ro *RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Search and download every configured job, skipping post-processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled := true
			return ro.runPipeline(cmd, pipeline.Options{DownloadOverride: &enabled})
		},
	}
}

func newRunCmd(ro *RootOpts) *cobra.Command {
	var (
		localProc  string
		remoteProc string
		noDownload bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the full pipeline: search, download, post-process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pipeline.Options{
				LocalProcessorName:  localProc,
				RemoteProcessorName: remoteProc,
			}
			if noDownload {
				disabled := false
				opts.DownloadOverride = &disabled
			}
			return ro.runPipeline(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&localProc, "post-processor", "", "Registered local post-processor name")
	cmd.Flags().StringVar(&remoteProc, "remote-processor", "", "Registered remote processor name")
	cmd.Flags().BoolVar(&noDownload, "no-download", false, "Register state rows without transferring payloads")
	return cmd
}
