package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"media-catalog/internal/database"
	"media-catalog/internal/indexer"
	"media-catalog/internal/thumbs"
)

var flagNoThumbs bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Walk the media roots and update the catalog",
	Long: `Indexes every configured root (CATALOG_ROOTS) into the store,
generating thumbnails as it goes, then derives folder albums from the
result. Media that disappeared from disk is kept; use purge to drop it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Roots) == 0 {
			return fmt.Errorf("no media roots configured; set CATALOG_ROOTS")
		}

		d, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore(d)

		var gen *thumbs.Generator
		if !flagNoThumbs {
			gen, err = thumbs.NewGenerator(cfg.CacheDir, cfg.ThumbSize, cfg.VideoThumbs)
			if err != nil {
				return err
			}
		}

		sum, err := indexer.New(d, gen, cfg.Roots).Run(cmd.Context())
		fmt.Printf("indexed %d file(s): %d image(s), %d video(s), %d thumbnail(s), %d error(s)\n",
			sum.Total, sum.Images, sum.Videos, sum.ThumbsOK, sum.Errors)
		if err != nil {
			return err
		}

		return d.RebuildAlbumsFromMedia(cmd.Context(), cfg.Roots)
	},
}

var rebuildAlbumsCmd = &cobra.Command{
	Use:   "rebuild-albums",
	Short: "Derive folder albums from the current catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Roots) == 0 {
			return fmt.Errorf("no media roots configured; set CATALOG_ROOTS")
		}

		d, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore(d)

		if err := d.RebuildAlbumsFromMedia(cmd.Context(), cfg.Roots); err != nil {
			return err
		}
		return printAlbumSummary(cmd, d)
	},
}

var repairAlbumsCmd = &cobra.Command{
	Use:   "repair-albums",
	Short: "Merge duplicate albums and fix their folder keys",
	Long: `Runs the album canonicalization pass: each album's folder identity is
re-derived from its media, duplicates are merged (preferring renamed
albums), stale keys are corrected and empty albums removed. Safe to run
repeatedly; a converged catalog does not change.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Roots) == 0 {
			return fmt.Errorf("no media roots configured; set CATALOG_ROOTS")
		}

		d, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore(d)

		if err := d.RepairAlbums(cmd.Context(), cfg.Roots); err != nil {
			return err
		}
		return printAlbumSummary(cmd, d)
	},
}

func printAlbumSummary(cmd *cobra.Command, d *database.Database) error {
	albums, err := d.ListAlbums(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("%d album(s)\n", len(albums))
	for _, a := range albums {
		fmt.Printf("  %-30s %4d item(s)  key=%s\n", a.Title, a.Count, a.FolderKey)
	}
	return nil
}

func init() {
	indexCmd.Flags().BoolVar(&flagNoThumbs, "no-thumbs", false, "skip thumbnail generation")
	rootCmd.AddCommand(indexCmd, rebuildAlbumsCmd, repairAlbumsCmd)
}
