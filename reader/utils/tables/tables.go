package tables

import (
	"fmt"
	"sync"

	"github.com/metrico/loghouse/reader/utils/dbVersion"
)

var tableNames = map[string]string{}
var lock sync.RWMutex

func init() {
	lock.Lock()
	defer lock.Unlock()

	tableNames["time_series"] = "time_series"
	tableNames["time_series_dist"] = "time_series_dist"
	tableNames["time_series_gin"] = "time_series_gin"
	tableNames["time_series_gin_dist"] = "time_series_gin_dist"
	tableNames["samples_v3"] = "samples_v3"
	tableNames["samples_v3_dist"] = "samples_v3_dist"
	tableNames["samples_read_v2_2"] = "samples_read_v2_2"
	tableNames["metrics_15s"] = "metrics_15s"
	tableNames["settings"] = "settings"
}

func GetTableName(name string) string {
	lock.RLock()
	defer lock.RUnlock()
	return tableNames[name]
}

// OverrideTableName replaces a table mapping, for deployments with renamed
// schemas.
func OverrideTableName(name string, value string) {
	lock.Lock()
	defer lock.Unlock()
	tableNames[name] = value
}

// GetSamplesReadTable picks the samples source according to the v3 schema
// watermark. Ranges starting before the watermark must read the legacy
// merged view.
func GetSamplesReadTable(info dbVersion.VersionInfo, fromNs int64, toNs int64) string {
	if info.IsVersionSupported("v3_1", fromNs, toNs) {
		return GetTableName("samples_v3")
	}
	return GetTableName("samples_read_v2_2")
}

// QualifyTableName renders a cluster-qualified dist table reference. The dist
// variant resolves through the name map first so overrides apply to it too.
func QualifyTableName(dbName string, table string, dist bool) string {
	if dist {
		if mapped := GetTableName(table + "_dist"); mapped != "" {
			table = mapped
		} else {
			table += "_dist"
		}
	}
	if dbName == "" {
		return table
	}
	return fmt.Sprintf("`%s`.%s", dbName, table)
}
