// Command loo-client replays a recorded location track against the toilet
// backend and logs every cluster set the map would render.
//
// Each line of the track is a JSON object {"lat": .., "lon": ..}. Blank lines
// are skipped; lines that do not parse are logged and skipped.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"loo-finder/client"
	"loo-finder/config"
	"loo-finder/models"
	"loo-finder/services"
)

func main() {
	trackPath := flag.String("track", "", "JSON-lines file of location fixes (stdin if empty)")
	span := flag.Float64("span", 0, "viewport span in degrees (0 uses the configured default)")
	interval := flag.Duration("interval", 0, "delay between fixes")
	linger := flag.Duration("linger", 3*time.Second, "time to wait for the last search after the track ends")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateClient(); err != nil {
		log.Fatal(err)
	}

	in := io.Reader(os.Stdin)
	if *trackPath != "" {
		f, err := os.Open(*trackPath)
		if err != nil {
			log.Fatalf("Failed to open track: %v", err)
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := services.NewClusterEngine()
	engine.PointSize = cfg.Cluster.PointSize
	engine.TileSize = cfg.Cluster.TileSize
	engine.MaxZoom = cfg.Cluster.MaxZoom
	engine.SortByID = cfg.Cluster.SortByID

	defaultSpan := cfg.Client.DefaultSpan
	if *span > 0 {
		defaultSpan = *span
	}

	orch := client.NewOrchestrator(
		services.NewResultCache(cfg.Cache.DistanceThresholdMeters, cfg.Cache.TimeThreshold),
		engine,
		client.NewHTTPFinder(cfg.Client.BackendURL, cfg.Client.FetchMaxRetries),
		logClusters,
		client.Options{
			SearchRadius: cfg.Cache.SearchRadiusMeters,
			DefaultSpan:  defaultSpan,
		},
	)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.Run(runCtx)
	}()

	fixes, err := replay(runCtx, in, orch, *interval)
	if err != nil {
		log.Printf("Track read failed after %d fixes: %v", fixes, err)
	}
	log.Printf("Replayed %d fixes", fixes)

	select {
	case <-time.After(*linger):
	case <-ctx.Done():
	}
	cancel()
	<-done
}

func replay(ctx context.Context, in io.Reader, orch *client.Orchestrator, interval time.Duration) (int, error) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 1024), 1024*1024)

	fixes := 0
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var c models.Coordinate
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			log.Printf("Skipping track line %d: %v", line, err)
			continue
		}
		if err := orch.UpdateLocation(ctx, c); err != nil {
			return fixes, err
		}
		fixes++

		if interval > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return fixes, ctx.Err()
			}
		}
	}
	return fixes, sc.Err()
}

func logClusters(clusters []models.Cluster, viewport models.Viewport) {
	log.Printf("Rendering %d clusters around %.5f,%.5f", len(clusters), viewport.Center.Latitude, viewport.Center.Longitude)
	for _, c := range clusters {
		if c.IsSingleton {
			log.Printf("  toilet %s at %.5f,%.5f", c.MemberIDs[0], c.Coordinate.Latitude, c.Coordinate.Longitude)
			continue
		}
		log.Printf("  cluster %s: %d toilets at %.5f,%.5f", c.ID, c.Count, c.Coordinate.Latitude, c.Coordinate.Longitude)
	}
}
