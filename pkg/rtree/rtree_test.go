package rtree

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/1F47E/imagery-dater/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var captureTime = time.Date(2021, time.June, 15, 9, 12, 44, 0, time.UTC)

func capture(lat, lng float64) models.Capture {
	return models.Capture{Location: models.Location{Lat: lat, Lng: lng}, Timestamp: captureTime}
}

func TestNewCaptureIndex(t *testing.T) {
	index := NewCaptureIndex()
	assert.NotNil(t, index)
	assert.NotEmpty(t, index.partitions)
	assert.Equal(t, int64(0), index.Count())
}

func TestQueryBox(t *testing.T) {
	index := NewCaptureIndexWithPartitions(4)

	index.IndexCaptures([]models.Capture{
		capture(37.7749, -122.4194), // San Francisco
		capture(34.0522, -118.2437), // Los Angeles
		capture(32.7157, -117.1611), // San Diego
		capture(40.7128, -74.0060),  // New York (outside)
		capture(41.8781, -87.6298),  // Chicago (outside)
	})
	assert.Equal(t, int64(5), index.Count())

	// Query box covering California
	results := index.QueryBox(models.BoundingBox{
		BottomLeft: models.Location{Lat: 32.0, Lng: -125.0},
		TopRight:   models.Location{Lat: 42.0, Lng: -114.0},
	})
	assert.Len(t, results, 3)

	for _, c := range results {
		assert.Less(t, c.Location.Lng, -114.0)
		assert.Equal(t, captureTime, c.Timestamp)
	}
}

func TestQueryRadius(t *testing.T) {
	index := NewCaptureIndexWithPartitions(8)

	sf := models.Location{Lat: 37.7749, Lng: -122.4194}
	index.IndexCaptures([]models.Capture{
		{Location: sf, Timestamp: captureTime},
		capture(37.8044, -122.2712), // Oakland ~13km
		capture(37.3382, -121.8863), // San Jose ~48km
		capture(38.5816, -121.4944), // Sacramento ~120km
		capture(34.0522, -118.2437), // LA ~560km
	})

	testCases := []struct {
		name     string
		radius   float64
		expected int
	}{
		{"10km radius", 10, 1},
		{"20km radius", 20, 2},
		{"80km radius", 80, 3},
		{"150km radius", 150, 4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			results := index.QueryRadius(sf, tc.radius)
			assert.Len(t, results, tc.expected)
		})
	}
}

func TestNearestNeighbors(t *testing.T) {
	index := NewCaptureIndexWithPartitions(4)
	index.IndexCaptures([]models.Capture{
		capture(37.7749, -122.4194),
		capture(37.7849, -122.4094),
		capture(37.7649, -122.4294),
		capture(37.8049, -122.3994),
		capture(37.7549, -122.4394),
	})

	center := models.Location{Lat: 37.7749, Lng: -122.4194}
	results := index.NearestNeighbors(center, 3)

	require.Len(t, results, 3)
	assert.Equal(t, center, results[0].Location)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, Distance(center, results[i-1].Location), Distance(center, results[i].Location))
	}

	assert.Len(t, index.NearestNeighbors(center, 10), 5)
	assert.Empty(t, index.NearestNeighbors(center, 0))
}

func TestPersistence(t *testing.T) {
	index1 := NewCaptureIndex()
	index1.IndexCaptures(randomCaptures(100))

	path := filepath.Join(t.TempDir(), "index", "captures.gob")
	require.NoError(t, index1.SaveToFile(path))

	index2 := NewCaptureIndex()
	require.NoError(t, index2.LoadFromFile(path))
	assert.Equal(t, index1.Count(), index2.Count())

	box := models.BoundingBox{
		BottomLeft: models.Location{Lat: 30, Lng: -120},
		TopRight:   models.Location{Lat: 40, Lng: -110},
	}
	assert.ElementsMatch(t, index1.QueryBox(box), index2.QueryBox(box))
}

func TestMergeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captures.gob")

	first := NewCaptureIndex()
	added, err := first.MergeFile(path, randomCaptures(10))
	require.NoError(t, err)
	assert.Equal(t, 10, added)

	second := NewCaptureIndex()
	added, err = second.MergeFile(path, randomCaptures(5))
	require.NoError(t, err)
	assert.Equal(t, 5, added)
	assert.Equal(t, int64(15), second.Count())

	reloaded := NewCaptureIndex()
	require.NoError(t, reloaded.LoadFromFile(path))
	assert.Equal(t, int64(15), reloaded.Count())
}

func TestMergeFileSkipsKnownCaptures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captures.gob")
	captures := randomCaptures(20)

	index := NewCaptureIndex()
	added, err := index.MergeFile(path, captures)
	require.NoError(t, err)
	assert.Equal(t, 20, added)

	// Same run again, plus one new capture and a duplicate inside the batch
	extra := capture(60, 10)
	again := append(append([]models.Capture{}, captures...), extra, extra)

	rerun := NewCaptureIndex()
	added, err = rerun.MergeFile(path, again)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, int64(21), rerun.Count())

	reloaded := NewCaptureIndex()
	require.NoError(t, reloaded.LoadFromFile(path))
	assert.Equal(t, int64(21), reloaded.Count())
}

func TestQueryRadiusEastWestAtHighLatitude(t *testing.T) {
	index := NewCaptureIndexWithPartitions(8)

	center := models.Location{Lat: 60, Lng: 10}
	index.IndexCaptures([]models.Capture{
		capture(60, 10.15),  // ~8.3km east
		capture(60, 9.85),   // ~8.3km west
		capture(60, 10.25),  // ~13.9km east
		capture(78.2, 15.6), // Longyearbyen, far away
	})

	results := index.QueryRadius(center, 10)
	assert.Len(t, results, 2)
	for _, c := range results {
		assert.LessOrEqual(t, Distance(center, c.Location), 10.0)
	}

	arctic := models.Location{Lat: 89.5, Lng: 0}
	index.IndexCaptures([]models.Capture{capture(89.5, 170)})
	assert.Len(t, index.QueryRadius(arctic, 150), 1, "near the pole the box spans every longitude")
}

func TestConcurrentQueries(t *testing.T) {
	index := NewCaptureIndex()
	index.IndexCaptures(randomCaptures(5000))

	done := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		go func(i int) {
			defer func() { done <- true }()
			center := models.Location{Lat: 40, Lng: -100}
			if i%2 == 0 {
				_ = index.QueryRadius(center, 200)
			} else {
				assert.Len(t, index.NearestNeighbors(center, 5), 5)
			}
		}(i)
	}

	for i := 0; i < 50; i++ {
		<-done
	}
}

func TestDistance(t *testing.T) {
	testCases := []struct {
		name     string
		a, b     models.Location
		expected float64
		delta    float64
	}{
		{"Same point", models.Location{Lat: 37.7749, Lng: -122.4194}, models.Location{Lat: 37.7749, Lng: -122.4194}, 0, 0.01},
		{"SF to Oakland", models.Location{Lat: 37.7749, Lng: -122.4194}, models.Location{Lat: 37.8044, Lng: -122.2712}, 13.0, 1.0},
		{"SF to LA", models.Location{Lat: 37.7749, Lng: -122.4194}, models.Location{Lat: 34.0522, Lng: -118.2437}, 559.0, 5.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, Distance(tc.a, tc.b), tc.delta)
		})
	}
}

func randomCaptures(n int) []models.Capture {
	captures := make([]models.Capture, n)
	for i := 0; i < n; i++ {
		captures[i] = models.Capture{
			Location: models.Location{
				Lat: rand.Float64()*20 + 30,  // 30-50
				Lng: rand.Float64()*40 - 120, // -120 to -80
			},
			Timestamp: captureTime.Add(time.Duration(i) * time.Minute),
		}
	}
	return captures
}

func BenchmarkQueryRadius(b *testing.B) {
	index := NewCaptureIndex()
	index.IndexCaptures(randomCaptures(100000))
	center := models.Location{Lat: 37.5, Lng: -112.5}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = index.QueryRadius(center, 50)
	}
}

func BenchmarkIndexCaptures(b *testing.B) {
	for _, size := range []int{1000, 10000} {
		b.Run(fmt.Sprintf("%d_captures", size), func(b *testing.B) {
			captures := randomCaptures(size)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				NewCaptureIndex().IndexCaptures(captures)
			}
		})
	}
}
