package tables

import (
	"testing"

	"github.com/metrico/loghouse/reader/utils/dbVersion"
	"github.com/stretchr/testify/assert"
)

func TestGetSamplesReadTable(t *testing.T) {
	watermark := dbVersion.VersionInfo{"v3_1": 1000}

	// range fully behind the watermark reads the v3 table
	assert.Equal(t, "samples_v3",
		GetSamplesReadTable(watermark, 2000*1000000000, 3000*1000000000))
	// range starting before the watermark falls back to the merged view
	assert.Equal(t, "samples_read_v2_2",
		GetSamplesReadTable(watermark, 500*1000000000, 3000*1000000000))
	// no watermark at all
	assert.Equal(t, "samples_read_v2_2",
		GetSamplesReadTable(dbVersion.VersionInfo{}, 2000*1000000000, 3000*1000000000))
}

func TestQualifyTableName(t *testing.T) {
	assert.Equal(t, "samples_v3", QualifyTableName("", "samples_v3", false))
	assert.Equal(t, "samples_v3_dist", QualifyTableName("", "samples_v3", true))
	assert.Equal(t, "`db`.samples_v3", QualifyTableName("db", "samples_v3", false))
	assert.Equal(t, "`db`.samples_v3_dist", QualifyTableName("db", "samples_v3", true))
}

func TestOverrideTableName(t *testing.T) {
	orig := GetTableName("time_series")
	defer OverrideTableName("time_series", orig)

	OverrideTableName("time_series", "custom_time_series")
	assert.Equal(t, "custom_time_series", GetTableName("time_series"))
}

func TestOverrideDistTableName(t *testing.T) {
	orig := GetTableName("time_series_dist")
	defer OverrideTableName("time_series_dist", orig)

	OverrideTableName("time_series_dist", "custom_ts_dist")
	assert.Equal(t, "custom_ts_dist", QualifyTableName("", "time_series", true))
	assert.Equal(t, "`db`.custom_ts_dist", QualifyTableName("db", "time_series", true))
}
