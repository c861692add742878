package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/webbuilder/config"
	"github.com/mohammad-safakhou/webbuilder/internal/pages"
	"github.com/mohammad-safakhou/webbuilder/internal/reconcile"
)

// reconcileCMD runs one orphan scan over the uploads directory. The
// directory comes from --dir, or from the config file when -c is given.
func reconcileCMD() *cobra.Command {
	var dir string
	var cfgPath string
	var rc = &cobra.Command{
		Use:   "reconcile",
		Short: "Report HTML artifacts missing from the page index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath != "" && !cmd.Flags().Changed("dir") {
				cfg, err := config.LoadConfig(cfgPath)
				if err != nil {
					return err
				}
				dir = cfg.Storage.UploadsDir
			}
			logger := log.New(log.Writer(), "[RECONCILE] ", log.LstdFlags)
			r := &reconcile.Reconciler{
				Dir:    dir,
				Index:  pages.NewStore(pages.Options{Dir: dir, Logger: logger}),
				Logger: logger,
			}
			orphans, err := r.Scan(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range orphans {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			logger.Printf("%d orphaned artifacts in %s", len(orphans), dir)
			return nil
		},
	}
	rc.Flags().StringVar(&dir, "dir", "uploads", "uploads directory")
	rc.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file")

	return rc
}
