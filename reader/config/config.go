package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type ClickHouseSettings struct {
	DSN      string `yaml:"dsn"`
	HttpUrl  string `yaml:"http_url"`
	Name     string `yaml:"name"`
	Database string `yaml:"database"`
	Cluster  bool   `yaml:"cluster"`
}

type LogSettings struct {
	Json   bool   `yaml:"json"`
	Level  string `yaml:"level"`
	Stdout bool   `yaml:"stdout"`
}

type Settings struct {
	ClickHouse ClickHouseSettings `yaml:"clickhouse"`
	Log        LogSettings        `yaml:"log"`

	AdvancedSeriesRequestLimit int `yaml:"advanced_series_request_limit"`
	AdvancedSummaryLimit       int `yaml:"advanced_summary_limit"`
	BulkMaxSizeBytes           int `yaml:"bulk_max_size_bytes"`
	BulkMaxAgeMs               int `yaml:"bulk_max_age_ms"`
}

func defaults() *Settings {
	return &Settings{
		AdvancedSeriesRequestLimit: 1000,
		AdvancedSummaryLimit:       2000,
		BulkMaxSizeBytes:           10 * 1024 * 1024,
		BulkMaxAgeMs:               100,
	}
}

// Load reads YAML settings with environment overrides on top.
func Load(path string) (*Settings, error) {
	res := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "config read failed")
		}
		if err := yaml.Unmarshal(data, res); err != nil {
			return nil, errors.Wrap(err, "config parse failed")
		}
	}
	applyEnv(res)
	return res, nil
}

func applyEnv(s *Settings) {
	if dsn := os.Getenv("CLICKHOUSE_DSN"); dsn != "" {
		s.ClickHouse.DSN = dsn
	}
	if url := os.Getenv("CLICKHOUSE_HTTP_URL"); url != "" {
		s.ClickHouse.HttpUrl = url
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		s.Log.Level = lvl
	}
	if lim := os.Getenv("ADVANCED_SERIES_REQUEST_LIMIT"); lim != "" {
		if v, err := strconv.Atoi(lim); err == nil {
			s.AdvancedSeriesRequestLimit = v
		}
	}
	if lim := os.Getenv("ADVANCED_SUMMARY_LIMIT"); lim != "" {
		if v, err := strconv.Atoi(lim); err == nil {
			s.AdvancedSummaryLimit = v
		}
	}
}
