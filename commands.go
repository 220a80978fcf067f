package main

import (
	"fmt"

	"photo-vault/internal/logging"
	"photo-vault/internal/memory"
	"photo-vault/internal/startup"

	"github.com/spf13/cobra"
)

var (
	overrides startup.Overrides

	// current is the application wired by the root pre-run hook.
	current *app

	rootCmd = &cobra.Command{
		Use:   "photo-vault",
		Short: "Catalog images by content and generate thumbnails",
		Long: `photo-vault walks directories for images, records each distinct image
in a SQLite registry keyed by its SHA-256 fingerprint, and generates
300x300 JPEG thumbnails for catalogued images.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	catalogCmd = &cobra.Command{
		Use:   "catalog [dirs...]",
		Short: "Scan directories and record new images in the registry",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := current.catalog(cmd.Context(), current.cfg.Roots())
			return err
		},
	}

	thumbnailsCmd = &cobra.Command{
		Use:   "thumbnails",
		Short: "Generate thumbnails for registry entries that lack one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := current.thumbnails(cmd.Context())
			return err
		},
	}

	runCmd = &cobra.Command{
		Use:   "run [dirs...]",
		Short: "Catalog, then generate thumbnails",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return current.runAll(cmd.Context(), current.cfg.Roots())
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch [dirs...]",
		Short: "Run once, then re-run whenever the search directories change",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return current.watch(cmd.Context())
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print registry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := current.db.CountImages(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "images:             %d\n", stats.TotalImages)
			fmt.Fprintf(out, "with thumbnail:     %d\n", stats.WithThumbnail)
			fmt.Fprintf(out, "pending thumbnails: %d\n", stats.PendingThumbs)
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// Overrides the root hook: no config or registry needed.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			info := startup.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "photo-vault %s (commit %s, built %s, %s %s/%s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&overrides.ConfigFile, "config", "", "YAML config file (env "+startup.ConfigFileEnv+")")
	pf.StringVar(&overrides.DatabaseDir, "db", "", "registry directory (env DATABASE_DIR)")
	pf.StringVar(&overrides.ThumbnailDir, "thumbnail-dir", "", "thumbnail output directory (env THUMBNAIL_DIR)")
	pf.IntVar(&overrides.Workers, "workers", 0, "fingerprint and thumbnail workers (0 = auto)")

	for _, cmd := range []*cobra.Command{catalogCmd, runCmd, watchCmd} {
		cmd.Flags().IntVar(&overrides.BatchSize, "batch-size", 0, "records per registry transaction (env BATCH_SIZE)")
	}

	rootCmd.AddCommand(catalogCmd, thumbnailsCmd, runCmd, watchCmd, statsCmd, versionCmd)
}

// setup loads configuration and wires the application before any
// subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	startup.PrintBanner()
	memory.ConfigureFromEnv()

	o := overrides
	if len(args) > 0 {
		o.SearchDirs = args
	}

	cfg, err := startup.LoadConfig(o)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if cfg.LogLevel != "" && !logging.IsDebugEnabled() {
		logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	}
	if cfg.LogFile != "" {
		if err := logging.SetOutputFile(cfg.LogFile); err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	current = a
	return nil
}
