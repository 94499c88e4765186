// Package rtree implements an R-Tree index of resolved captures, partitioned
// into longitude bands so queries can search partitions in parallel.
package rtree

import (
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"

	"github.com/1F47E/imagery-dater/pkg/models"
)

const (
	tolerance   = 0.0001
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
	earthRadius = 6371.0 // km
	maxBoxLat   = 89.0
)

// spatialCapture wraps a capture to implement rtreego.Spatial
type spatialCapture struct {
	capture models.Capture
	rect    *rtreego.Rect
}

func (sc *spatialCapture) Bounds() *rtreego.Rect {
	return sc.rect
}

// CaptureIndex is a thread-safe spatial index of captures
type CaptureIndex struct {
	partitions []*rtreego.Rtree
	numParts   int
	mu         sync.RWMutex
	itemCount  atomic.Int64

	partitionBounds []models.BoundingBox
}

// NewCaptureIndex creates an index with one partition per CPU
func NewCaptureIndex() *CaptureIndex {
	return NewCaptureIndexWithPartitions(runtime.NumCPU())
}

// NewCaptureIndexWithPartitions creates an index with the given number of longitude bands
func NewCaptureIndexWithPartitions(numPartitions int) *CaptureIndex {
	if numPartitions <= 0 {
		numPartitions = runtime.NumCPU()
	}

	partitions := make([]*rtreego.Rtree, numPartitions)
	partitionBounds := make([]models.BoundingBox, numPartitions)

	lonRange := 360.0 / float64(numPartitions)
	for i := 0; i < numPartitions; i++ {
		partitions[i] = rtreego.NewTree(dimensions, minChildren, maxChildren)

		minLng := -180.0 + float64(i)*lonRange
		maxLng := minLng + lonRange
		if i == numPartitions-1 {
			maxLng = 180.0 // last band covers the remainder
		}

		partitionBounds[i] = models.BoundingBox{
			BottomLeft: models.Location{Lat: -90, Lng: minLng},
			TopRight:   models.Location{Lat: 90, Lng: maxLng},
		}
	}

	return &CaptureIndex{
		partitions:      partitions,
		numParts:        numPartitions,
		partitionBounds: partitionBounds,
	}
}

// IndexCaptures adds captures to the index
func (g *CaptureIndex) IndexCaptures(captures []models.Capture) {
	if len(captures) == 0 {
		return
	}

	// Group captures by partition
	partitioned := make([][]*spatialCapture, g.numParts)
	for _, c := range captures {
		p := rtreego.Point{c.Location.Lat, c.Location.Lng}
		item := &spatialCapture{capture: c, rect: p.ToRect(tolerance)}

		idx := g.partitionFor(c.Location.Lng)
		partitioned[idx] = append(partitioned[idx], item)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < g.numParts; i++ {
		if len(partitioned[i]) == 0 {
			continue
		}

		wg.Add(1)
		go func(idx int, items []*spatialCapture) {
			defer wg.Done()
			for _, item := range items {
				g.partitions[idx].Insert(item)
			}
			g.itemCount.Add(int64(len(items)))
		}(i, partitioned[i])
	}

	wg.Wait()
}

// QueryBox returns all captures within the bounding box
func (g *CaptureIndex) QueryBox(box models.BoundingBox) []models.Capture {
	g.mu.RLock()
	defer g.mu.RUnlock()

	bounds, err := boxRect(box)
	if err != nil {
		return nil
	}

	return g.search(g.relevantPartitions(box), bounds, box.Contains)
}

// QueryRadius returns all captures within radiusKm of center
func (g *CaptureIndex) QueryRadius(center models.Location, radiusKm float64) []models.Capture {
	g.mu.RLock()
	defer g.mu.RUnlock()

	box := radiusBox(center, radiusKm)

	bounds, err := boxRect(box)
	if err != nil {
		return nil
	}

	return g.search(g.relevantPartitions(box), bounds, func(l models.Location) bool {
		return Distance(center, l) <= radiusKm
	})
}

// search queries the partitions in parallel and keeps the captures accepted by keep
func (g *CaptureIndex) search(partitions []int, bounds *rtreego.Rect, keep func(models.Location) bool) []models.Capture {
	resultsChan := make(chan []models.Capture, len(partitions))

	for _, idx := range partitions {
		go func(idx int) {
			var found []models.Capture
			for _, result := range g.partitions[idx].SearchIntersect(bounds) {
				item, ok := result.(*spatialCapture)
				if !ok {
					continue
				}
				if keep(item.capture.Location) {
					found = append(found, item.capture)
				}
			}
			resultsChan <- found
		}(idx)
	}

	var all []models.Capture
	for range partitions {
		all = append(all, <-resultsChan...)
	}
	return all
}

// NearestNeighbors returns the n captures closest to center, nearest first
func (g *CaptureIndex) NearestNeighbors(center models.Location, n int) []models.Capture {
	if n <= 0 {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	type candidate struct {
		capture  models.Capture
		distance float64
	}

	resultsChan := make(chan []candidate, g.numParts)
	for i := 0; i < g.numParts; i++ {
		go func(idx int) {
			queryPoint := rtreego.Point{center.Lat, center.Lng}
			results := g.partitions[idx].NearestNeighbors(n, queryPoint)

			candidates := make([]candidate, 0, len(results))
			for _, result := range results {
				item, ok := result.(*spatialCapture)
				if !ok || item == nil {
					continue
				}
				candidates = append(candidates, candidate{
					capture:  item.capture,
					distance: Distance(center, item.capture.Location),
				})
			}
			resultsChan <- candidates
		}(i)
	}

	var all []candidate
	for i := 0; i < g.numParts; i++ {
		all = append(all, <-resultsChan...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].distance < all[j].distance })
	if len(all) > n {
		all = all[:n]
	}

	captures := make([]models.Capture, len(all))
	for i, c := range all {
		captures[i] = c.capture
	}
	return captures
}

// All returns every indexed capture
func (g *CaptureIndex) All() []models.Capture {
	return g.QueryBox(models.BoundingBox{
		BottomLeft: models.Location{Lat: -90, Lng: -180},
		TopRight:   models.Location{Lat: 90, Lng: 180},
	})
}

// Count returns the number of indexed captures
func (g *CaptureIndex) Count() int64 {
	return g.itemCount.Load()
}

// Clear removes all captures from the index
func (g *CaptureIndex) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i < g.numParts; i++ {
		g.partitions[i] = rtreego.NewTree(dimensions, minChildren, maxChildren)
	}
	g.itemCount.Store(0)
}

// boxRect converts a bounding box to an rtreego rectangle. Degenerate boxes
// get the point tolerance as their extent.
func boxRect(box models.BoundingBox) (*rtreego.Rect, error) {
	latLen := math.Max(box.TopRight.Lat-box.BottomLeft.Lat, tolerance)
	lngLen := math.Max(box.TopRight.Lng-box.BottomLeft.Lng, tolerance)
	return rtreego.NewRect(
		rtreego.Point{box.BottomLeft.Lat, box.BottomLeft.Lng},
		[]float64{latLen, lngLen},
	)
}

// radiusBox returns a box enclosing the circle of radiusKm around center.
// A degree of longitude shrinks with cos(lat), so the longitude span widens
// away from the equator and covers every longitude near the poles.
func radiusBox(center models.Location, radiusKm float64) models.BoundingBox {
	latDeg := (radiusKm / earthRadius) * (180 / math.Pi)

	lngDeg := 180.0
	if maxLat := math.Abs(center.Lat) + latDeg; maxLat < maxBoxLat {
		lngDeg = math.Min(latDeg/math.Cos(maxLat*math.Pi/180), 180)
	}

	return models.BoundingBox{
		BottomLeft: models.Location{Lat: center.Lat - latDeg, Lng: center.Lng - lngDeg},
		TopRight:   models.Location{Lat: center.Lat + latDeg, Lng: center.Lng + lngDeg},
	}
}

func (g *CaptureIndex) partitionFor(lng float64) int {
	idx := int((lng + 180.0) / (360.0 / float64(g.numParts)))
	if idx >= g.numParts {
		idx = g.numParts - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// relevantPartitions returns the partitions whose longitude band intersects the box
func (g *CaptureIndex) relevantPartitions(box models.BoundingBox) []int {
	var relevant []int
	for i, bounds := range g.partitionBounds {
		if box.BottomLeft.Lng <= bounds.TopRight.Lng &&
			box.TopRight.Lng >= bounds.BottomLeft.Lng {
			relevant = append(relevant, i)
		}
	}
	return relevant
}

// Distance calculates the haversine distance between two locations in kilometers
func Distance(a, b models.Location) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadius * c
}
