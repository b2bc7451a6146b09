package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/andresmejia3/sentinel-home/internal/api"
	"github.com/andresmejia3/sentinel-home/internal/utils"
	"github.com/spf13/cobra"
)

var serveOpts struct {
	Host string
	Port int
}

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Serve the visitor log and gallery status over HTTP",
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.Host, "host", "", "Listen host (default: WEB_HOST)")
	serveCmd.Flags().IntVarP(&serveOpts.Port, "port", "p", 0, "Listen port (default: WEB_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	logger := slog.Default()
	if serveOpts.Host != "" {
		cfg.Web.Host = serveOpts.Host
	}
	if serveOpts.Port > 0 {
		cfg.Web.Port = serveOpts.Port
	}

	// Gallery status is optional here; the event endpoints work without it.
	var galleries api.Galleries
	if store, _, err := newGalleryStore(logger, false); err == nil {
		galleries = store
		go store.Run(ctx)
	} else {
		fmt.Fprintf(os.Stderr, "⚠️  Galleries unavailable: %v\n", err)
	}

	fmt.Fprintf(os.Stderr, "🌐 Serving on http://%s\n", cfg.Web.Addr())
	if err := api.NewServer(cfg.Web.Addr(), DB, galleries, logger).Run(ctx); err != nil {
		utils.ShowError("HTTP server failed", err, nil)
		return err
	}
	return nil
}
