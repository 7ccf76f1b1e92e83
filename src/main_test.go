package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benylaode/Analisi-Udara/src/config"
	"github.com/Benylaode/Analisi-Udara/src/dashboard"
	"github.com/Benylaode/Analisi-Udara/src/processor"
	"github.com/Benylaode/Analisi-Udara/src/storage"
)

const dataCSV = `datetime,station,PM2.5,PM10,SO2,NO2,CO,O3,TEMP,PRES,DEWP,RAIN,WSPM,Rata-Rata Kualitas Udarah
2016-03-01 00:00:00,Dongsi,10,20,3,40,500,60,1,1010,-5,0,2,10
2016-03-01 00:00:00,Wanliu,30,50,4,41,600,61,2,1011,-4,0,3,30
2016-06-01 00:00:00,Wanliu,35,55,4,41,600,61,2,1011,-4,0,3,33
2017-03-01 00:00:00,Wanliu,50,80,7,44,800,64,5,1013,-1,0.5,5,50
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data_udarah.csv")
	require.NoError(t, os.WriteFile(dataPath, []byte(dataCSV), 0644))

	cfg, err := config.Load(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	cfg.Data.Path = dataPath
	cfg.Report.OutputDir = filepath.Join(dir, "report")
	return cfg
}

func TestBuildDashboard(t *testing.T) {
	cfg := testConfig(t)
	cfg.Analysis.Station = "Wanliu"
	cfg.Analysis.StartDate = "2016-01-01"
	cfg.Analysis.EndDate = "2016-12-31"
	cfg.Analysis.Parameters = []string{"PM2.5", "PM10"}
	cfg.Analysis.View = "year"

	dash, err := buildDashboard(cfg, storage.Nop())
	require.NoError(t, err)

	assert.Equal(t, 2, dash.FilteredCount())
	v := dash.Recompute()
	assert.Equal(t, dashboard.ViewYear, v.Mode)
	assert.Equal(t, []string{"PM2.5", "PM10"}, v.Criteria.Parameters)
}

func TestBuildDashboardErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Analysis.View = "weekly"
	_, err := buildDashboard(cfg, storage.Nop())
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Analysis.StartDate = "soon"
	_, err = buildDashboard(cfg, storage.Nop())
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Analysis.Parameters = []string{"WSPM"}
	_, err = buildDashboard(cfg, storage.Nop())
	assert.ErrorIs(t, err, processor.ErrUnknownParameter)
}

func TestRangeFromConfig(t *testing.T) {
	cfg := testConfig(t)
	rng, err := rangeFromConfig(cfg)
	require.NoError(t, err)
	assert.True(t, rng.IsZero())

	cfg.Analysis.StartDate = "2016-03-01 00:00:00"
	rng, err = rangeFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2016, 3, 1, 0, 0, 0, 0, time.UTC), rng.Start)
	assert.True(t, rng.End.IsZero())
}

func TestRunReport(t *testing.T) {
	cfg := testConfig(t)
	logger, err := storage.NewLogger(filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	defer logger.Close()

	dash, err := buildDashboard(cfg, logger)
	require.NoError(t, err)

	runReport(context.Background(), cfg, dash, nil, logger)

	files, err := filepath.Glob(filepath.Join(cfg.Report.OutputDir, "air_quality_*.xlsx"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}
