package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pixeldrift/photosync/pkg/catalog"
	"github.com/pixeldrift/photosync/pkg/identity"
	"github.com/pixeldrift/photosync/pkg/preflight"
	"github.com/pixeldrift/photosync/pkg/util"
)

func newScanCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the configured media roots and print the date-bucketed library",
		Long: "scan walks the configured scan roots, derives the content identity of every\n" +
			"media file and prints the resulting date buckets. Nothing is transferred or\n" +
			"persisted; this is a dry inspection of the local library.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(false); err != nil {
				return err
			}
			if err := preflight.CheckScanRootsAccessible(cfg.Scan.Roots); err != nil {
				return err
			}

			scanner := catalog.NewScanner(
				identity.NewHasher(cfg.LargeFileThresholdBytes()),
				cfg.Scan.BatchSize,
				cfg.Scan.Workers,
			)

			index := catalog.NewIndex()
			var totalSize int64
			for item := range scanner.Scan(cmd.Context(), cfg.Scan.Roots) {
				if !item.IsMedia() {
					continue
				}
				if index.Add(item) {
					totalSize += item.Size
				}
			}

			out := cmd.OutOrStdout()
			for _, bucket := range index.Buckets() {
				fmt.Fprintf(out, "%s  (%d items)\n", bucket.Date, len(bucket.Items))
				if !verbose {
					continue
				}
				for _, item := range bucket.Items {
					fmt.Fprintf(out, "  %-7s %9s  %s\n", item.Type, util.ByteCountIEC(item.Size), item.AbsPath)
				}
			}
			fmt.Fprintf(out, "\n%d media files, %s total\n", index.Len(), util.ByteCountIEC(totalSize))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every file inside each date bucket")
	return cmd
}
