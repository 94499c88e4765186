package sink

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/1F47E/imagery-dater/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCaptures = []models.Capture{
	{Location: models.Location{Lat: 48.8566, Lng: 2.3522}, Timestamp: time.Date(2021, time.June, 15, 9, 12, 44, 0, time.UTC)},
	{Location: models.Location{Lat: -33.8688, Lng: 151.2093}, Timestamp: time.Date(2019, time.March, 2, 1, 0, 0, 0, time.UTC)},
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, testCaptures))

	want := "timestamp,lat,lng\n" +
		"1623748364,48.8566,2.3522\n" +
		"1551488400,-33.8688,151.2093\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "timestamp,lat,lng\n", buf.String())
}

func TestWriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csv", "paris.csv")
	require.NoError(t, WriteCSVFile(path, testCaptures))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1623748364,48.8566,2.3522")
}

func TestPostGISDSN(t *testing.T) {
	cfg := PostGISConfig{Host: "localhost", Port: 5432, User: "geo", Password: "secret", Database: "geodb"}
	assert.Equal(t, "host=localhost port=5432 user=geo password=secret dbname=geodb sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

// TestPostGISRoundTrip needs a PostGIS server, e.g. POSTGIS_PORT=5432 POSTGIS_PASSWORD=geo go test ./pkg/sink
func TestPostGISRoundTrip(t *testing.T) {
	portStr := os.Getenv("POSTGIS_PORT")
	if portStr == "" {
		t.Skip("POSTGIS_PORT not set")
	}
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	ctx := context.Background()
	db, err := NewPostGIS(ctx, PostGISConfig{
		Host:     "localhost",
		Port:     port,
		User:     "postgres",
		Password: os.Getenv("POSTGIS_PASSWORD"),
		Database: "postgres",
	})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.InitSchema(ctx))
	before, err := db.Count(ctx)
	require.NoError(t, err)

	require.NoError(t, db.BulkInsert(ctx, "test-run", testCaptures))

	after, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+int64(len(testCaptures)), after)

	results, err := db.QueryBox(ctx, models.BoundingBox{
		BottomLeft: models.Location{Lat: 48, Lng: 2},
		TopRight:   models.Location{Lat: 49, Lng: 3},
	})
	require.NoError(t, err)
	assert.Contains(t, results, testCaptures[0])
}
