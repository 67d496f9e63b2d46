package export

import (
	"context"
	"testing"
	"time"

	"innsync/internal/models"
	"innsync/internal/registry"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestBuildSyncReport(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zerolog.Nop()
	reg := registry.NewRefreshKeyRegistry(client, &logger)
	destinations := []models.Destination{
		{ID: 1, CompanyID: 10, ExternalID: "EXT-1", Name: "Pinewood Lodge", IsActive: true},
	}

	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, reg.Touch(ctx, models.RefreshAvailability, 1, now.Year(), now.Month()))

	reporter := NewSyncReporter(reg, destinations, 3, t.TempDir(), &logger)
	path, err := reporter.BuildSyncReport(ctx)
	require.NoError(t, err)
	assert.Contains(t, path, "sync_report_")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Contains(t, f.GetSheetList(), "Availability")
	assert.Contains(t, f.GetSheetList(), "Packages")

	name, err := f.GetCellValue("Availability", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Pinewood Lodge (1)", name)

	// The touched month shows a timestamp; the untouched next month is "never".
	synced, err := f.GetCellValue("Availability", "B2")
	require.NoError(t, err)
	assert.NotEqual(t, "never", synced)
	assert.NotEmpty(t, synced)

	next, err := f.GetCellValue("Availability", "C2")
	require.NoError(t, err)
	assert.Equal(t, "never", next)
}
