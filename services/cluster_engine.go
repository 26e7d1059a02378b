package services

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/dhconnelly/rtreego"

	"loo-finder/metrics"
	"loo-finder/models"
	"loo-finder/utils/geo"
)

// ClusterEngine groups toilets into map markers for a viewport.
//
// Clustering is greedy and single-pass: points are visited in order, each
// unclustered point seeds a cluster and absorbs every unclustered point within
// the zoom radius of the seed's own coordinate. The seed is the cluster's
// representative point, so a cluster always sits on a real toilet.
//
// PointSize - marker size in pixels, affects clustering radius
// TileSize - tile size in pixels, affects clustering radius
// SortByID - order points by id first, making output independent of input order
type ClusterEngine struct {
	PointSize int
	TileSize  int
	MinZoom   int
	MaxZoom   int
	SortByID  bool
	NodeMin   int
	NodeMax   int
}

// NewClusterEngine returns an engine with default parameters:
// PointSize = 40
// TileSize = 512
// MinZoom = 0, MaxZoom = 21
// NodeMin = 25, NodeMax = 50 (R-tree fan-out)
func NewClusterEngine() *ClusterEngine {
	return &ClusterEngine{
		PointSize: 40,
		TileSize:  512,
		MinZoom:   geo.MinZoom,
		MaxZoom:   geo.MaxZoom,
		NodeMin:   25,
		NodeMax:   50,
	}
}

type clusterItem struct {
	id    string
	coord models.Coordinate
	rect  rtreego.Rect
	index int
}

func (c *clusterItem) Bounds() rtreego.Rect {
	return c.rect
}

// Zoom returns the viewport's zoom level limited to the engine's range.
func (e *ClusterEngine) Zoom(viewport models.Viewport) int {
	zoom := geo.ZoomLevelFor(viewport)
	if zoom > e.MaxZoom {
		zoom = e.MaxZoom
	}
	if zoom < e.MinZoom {
		zoom = e.MinZoom
	}
	return zoom
}

// RadiusMeters is the real-world grouping distance for a zoom level: the
// marker size expressed in meters at that zoom and latitude.
func (e *ClusterEngine) RadiusMeters(zoom int, latitude float64) float64 {
	return float64(e.PointSize) / float64(e.TileSize) * 256 * geo.GroundResolution(zoom, latitude)
}

// Cluster partitions toilets into clusters for the viewport. Toilets with an
// invalid location are logged and left out. The result is never nil.
func (e *ClusterEngine) Cluster(toilets []models.Toilet, viewport models.Viewport) []models.Cluster {
	start := time.Now()
	zoom := e.Zoom(viewport)
	radius := e.RadiusMeters(zoom, viewport.Center.Latitude)

	items := e.clusterable(toilets)
	clusters := make([]models.Cluster, 0, len(items))
	if len(items) == 0 {
		return clusters
	}

	tree := rtreego.NewTree(2, e.NodeMin, e.NodeMax)
	for _, it := range items {
		tree.Insert(it)
	}

	clustered := make([]bool, len(items))
	for i, seed := range items {
		if clustered[i] {
			continue
		}
		clustered[i] = true
		members := []string{seed.id}

		for _, j := range e.candidates(tree, items, seed, radius) {
			if clustered[j] {
				continue
			}
			if geo.DistanceMeters(seed.coord, items[j].coord) <= radius {
				clustered[j] = true
				members = append(members, items[j].id)
			}
		}

		clusters = append(clusters, models.Cluster{
			ID:          fmt.Sprintf("%s@z%d", seed.id, zoom),
			Coordinate:  seed.coord,
			MemberIDs:   members,
			Count:       len(members),
			IsSingleton: len(members) == 1,
			Zoom:        zoom,
		})
	}

	metrics.ClusterDuration.Observe(time.Since(start).Seconds())
	metrics.ClustersProduced.Observe(float64(len(clusters)))
	return clusters
}

// ExpansionViewport returns the viewport to show after a cluster is tapped:
// centered on the cluster's representative toilet, one zoom level closer.
func (e *ClusterEngine) ExpansionViewport(c models.Cluster, current models.Viewport) models.Viewport {
	return models.Viewport{
		Center:        c.Coordinate,
		LatitudeSpan:  current.LatitudeSpan / 2,
		LongitudeSpan: current.LongitudeSpan / 2,
	}
}

func (e *ClusterEngine) clusterable(toilets []models.Toilet) []*clusterItem {
	items := make([]*clusterItem, 0, len(toilets))
	for _, t := range toilets {
		coord, ok := t.Coordinate()
		if !ok {
			log.Printf("cluster: skipping toilet %q with invalid location %v", t.ID, t.Location.Coordinates)
			metrics.InvalidPointsDropped.WithLabelValues("cluster").Inc()
			continue
		}
		items = append(items, &clusterItem{
			id:    t.ID,
			coord: coord,
			rect:  rtreego.Point{coord.Longitude, coord.Latitude}.ToRect(1e-9),
		})
	}
	if e.SortByID {
		sort.SliceStable(items, func(i, j int) bool { return items[i].id < items[j].id })
	}
	for i := range items {
		items[i].index = i
	}
	return items
}

// candidates returns indexes of points that may lie within radius of seed, in
// ascending order. The R-tree box is a superset; callers confirm by distance.
func (e *ClusterEngine) candidates(tree *rtreego.Rtree, items []*clusterItem, seed *clusterItem, radius float64) []int {
	box, ok := geo.BoundingBox(seed.coord, radius)
	if ok {
		rect, err := rtreego.NewRect(
			rtreego.Point{box.MinLon, box.MinLat},
			[]float64{box.MaxLon - box.MinLon, box.MaxLat - box.MinLat},
		)
		if err == nil {
			found := tree.SearchIntersect(rect)
			idx := make([]int, 0, len(found))
			for _, s := range found {
				if it := s.(*clusterItem); it.index != seed.index {
					idx = append(idx, it.index)
				}
			}
			sort.Ints(idx)
			return idx
		}
	}

	// box wraps a pole or the antimeridian
	idx := make([]int, 0, len(items)-1)
	for i := range items {
		if i != seed.index {
			idx = append(idx, i)
		}
	}
	return idx
}
