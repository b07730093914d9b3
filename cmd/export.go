package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pixeldrift/photosync/pkg/catalog"
	"github.com/pixeldrift/photosync/pkg/export"
	"github.com/pixeldrift/photosync/pkg/identity"
	"github.com/pixeldrift/photosync/pkg/preflight"
	"github.com/pixeldrift/photosync/pkg/util"
)

const exportDateLayout = "2006-01-02"

func newExportCmd() *cobra.Command {
	var (
		format    string
		fromDate  string
		toDate    string
		albumName string
	)

	cmd := &cobra.Command{
		Use:   "export <destination>",
		Short: "Export the local library into an archive",
		Long: "export scans the configured roots and writes the matching media into a\n" +
			"tar.gz, tar.zst or zip archive, laid out by date exactly like the remote\n" +
			"store. The selection can be narrowed by a date range or an album.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst := args[0]

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

			exportFormat, err := resolveFormat(format, dst)
			if err != nil {
				return err
			}
			opts, err := buildExportOptions(cfg.LibraryRoot, fromDate, toDate, albumName)
			if err != nil {
				return err
			}

			scanner := catalog.NewScanner(
				identity.NewHasher(cfg.LargeFileThresholdBytes()),
				cfg.Scan.BatchSize,
				cfg.Scan.Workers,
			)
			index := catalog.NewIndex()
			for item := range scanner.Scan(cmd.Context(), cfg.Scan.Roots) {
				if item.IsMedia() {
					index.Add(item)
				}
			}

			summary, err := export.NewExporter().Export(cmd.Context(), index, dst, exportFormat, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d files (%s) to %s.\n",
				summary.Files, util.ByteCountIEC(summary.Bytes), dst)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "archive format: tar.gz, tar.zst or zip (inferred from the destination by default)")
	cmd.Flags().StringVar(&fromDate, "from", "", "include items created on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toDate, "to", "", "include items created on or before this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&albumName, "album", "", "restrict the export to an album (ID or name)")
	return cmd
}

func resolveFormat(flagValue, dst string) (export.Format, error) {
	if flagValue != "" {
		return export.ParseFormat(flagValue)
	}
	return export.DetectFormat(dst)
}

func buildExportOptions(libraryRoot, fromDate, toDate, albumName string) (export.Options, error) {
	var opts export.Options

	if fromDate != "" {
		from, err := time.Parse(exportDateLayout, fromDate)
		if err != nil {
			return opts, fmt.Errorf("invalid --from date %q: %w", fromDate, err)
		}
		opts.From = from
	}
	if toDate != "" {
		to, err := time.Parse(exportDateLayout, toDate)
		if err != nil {
			return opts, fmt.Errorf("invalid --to date %q: %w", toDate, err)
		}
		opts.To = to
	}

	if albumName != "" {
		albums, err := catalog.NewAlbumStore(libraryRoot).Load()
		if err != nil {
			return opts, err
		}
		album, ok := catalog.Find(albums, albumName)
		if !ok {
			return opts, fmt.Errorf("no album with ID or name %q", albumName)
		}
		opts.Album = &album
	}
	return opts, nil
}
