package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/mapsync/internal/engine"
	"github.com/sells-group/mapsync/internal/feature"
	"github.com/sells-group/mapsync/internal/filter"
	"github.com/sells-group/mapsync/internal/geo"
	"github.com/sells-group/mapsync/internal/loop"
	"github.com/sells-group/mapsync/internal/server"
	"github.com/sells-group/mapsync/internal/source"
	"github.com/sells-group/mapsync/internal/view"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the preview HTTP server around the engine",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("source", "", "feature source path (overrides config)")
	serveCmd.Flags().String("driver", "", "source driver: geojson, shapefile, sqlite")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, path := cfg.Source.Driver, cfg.Source.Path
	if v, _ := cmd.Flags().GetString("driver"); v != "" {
		driver = v
	}
	if v, _ := cmd.Flags().GetString("source"); v != "" {
		path = v
	}
	feats, err := source.Load(ctx, driver, path)
	if err != nil {
		return err
	}

	l := loop.New()
	defer l.Stop()

	cam := view.NewCamera(l, view.CameraOptions{
		Center:   geo.LngLat{Lng: cfg.View.CenterLng, Lat: cfg.View.CenterLat},
		Zoom:     cfg.View.Zoom,
		Viewport: geo.Viewport{Width: cfg.View.ViewportWidth, Height: cfg.View.ViewportHeight},
	})
	store := feature.NewStore()
	fs := filter.NewSource()

	eng := engine.New(l, cfg.Engine, store, cam, fs, nil)
	eng.Start()
	eng.LoadFeatures(feats)
	defer eng.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.New(eng, store, fs, cam).Router(cfg.Server.RateLimit),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("server: listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}
