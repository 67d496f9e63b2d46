package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"innsync/internal/models"
	"innsync/internal/registry"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// SyncReporter writes the refresh schedule to an xlsx grid: one sheet per
// data kind, one row per destination, one column per horizon month, each
// cell the time of the month's last successful sync.
type SyncReporter struct {
	registry      *registry.RefreshKeyRegistry
	destinations  []models.Destination
	horizonMonths int
	path          string
	logger        zerolog.Logger
	now           func() time.Time
}

func NewSyncReporter(reg *registry.RefreshKeyRegistry, destinations []models.Destination, horizonMonths int, path string, logger *zerolog.Logger) *SyncReporter {
	return &SyncReporter{
		registry:      reg,
		destinations:  destinations,
		horizonMonths: horizonMonths,
		path:          path,
		logger:        logger.With().Str("component", "sync_report").Logger(),
		now:           time.Now,
	}
}

func (r *SyncReporter) BuildSyncReport(ctx context.Context) (string, error) {
	if err := os.MkdirAll(r.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	now := r.now()
	months := models.MonthsAhead(now, r.horizonMonths)

	sheets := []struct {
		name string
		kind models.RefreshKind
	}{
		{"Availability", models.RefreshAvailability},
		{"Packages", models.RefreshPackages},
	}
	for i, sheet := range sheets {
		index, err := f.NewSheet(sheet.name)
		if err != nil {
			return "", fmt.Errorf("error creating sheet: %w", err)
		}
		if i == 0 {
			f.SetActiveSheet(index)
		}
		if err := r.writeSheet(ctx, f, sheet.name, sheet.kind, months); err != nil {
			return "", err
		}
	}

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("sync_report_%s.xlsx", now.Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(r.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	r.logger.Info().Str("file_path", filePath).Msg("sync report created")
	return filePath, nil
}

func (r *SyncReporter) writeSheet(ctx context.Context, f *excelize.File, sheetName string, kind models.RefreshKind, months []models.RefreshKey) error {
	// All keys at once; the set holds at most destinations * horizon members.
	keys, err := r.registry.ListDue(ctx, kind, len(r.destinations)*r.horizonMonths+1)
	if err != nil {
		return fmt.Errorf("error reading refresh keys: %w", err)
	}

	lastSync := make(map[string]time.Time, len(keys))
	for _, key := range keys {
		lastSync[key.Value()] = time.UnixMicro(key.Timestamp)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	_ = f.SetCellValue(sheetName, "A1", "Destination")
	_ = f.SetCellStyle(sheetName, "A1", "A1", headerStyle)
	for i, month := range months {
		cell, _ := excelize.CoordinatesToCellName(i+2, 1)
		_ = f.SetCellValue(sheetName, cell, fmt.Sprintf("%s %d", month.Month.String()[:3], month.Year))
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for row, dest := range r.destinations {
		cell, _ := excelize.CoordinatesToCellName(1, row+2)
		_ = f.SetCellValue(sheetName, cell, fmt.Sprintf("%s (%d)", dest.Name, dest.ID))

		for col, month := range months {
			cell, _ := excelize.CoordinatesToCellName(col+2, row+2)
			value := models.EncodeRefreshValue(dest.ID, month.Year, month.Month)
			if syncedAt, ok := lastSync[value]; ok {
				_ = f.SetCellValue(sheetName, cell, syncedAt.Format("02.01.2006 15:04"))
			} else {
				_ = f.SetCellValue(sheetName, cell, "never")
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 25)
	return nil
}
