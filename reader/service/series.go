package service

import (
	"context"
	"time"

	"github.com/metrico/loghouse/reader/config"
	"github.com/metrico/loghouse/reader/logql/transpiler"
	"github.com/metrico/loghouse/reader/model"
	"github.com/metrico/loghouse/reader/utils/dbVersion"
)

// SeriesService answers series discovery requests, the distinct label sets
// matching one or more selectors.
type SeriesService struct {
	DB              model.IDataDB
	VersionProvider *dbVersion.Provider
	Cfg             *config.Settings
}

type SeriesParams struct {
	Requests []string
	From     time.Time
	To       time.Time
}

type seriesResponse struct {
	Status string              `json:"status"`
	Data   []map[string]string `json:"data"`
}

func (s *SeriesService) Series(ctx context.Context, params SeriesParams) (string, error) {
	info, err := s.VersionProvider.GetVersionInfo(ctx)
	if err != nil {
		return "", err
	}

	limit := int64(s.Cfg.AdvancedSeriesRequestLimit)
	if limit == 0 {
		limit = 1000
	}

	query, err := transpiler.TranspileSeries(params.Requests, transpiler.Settings{
		From:        params.From,
		To:          params.To,
		Limit:       limit,
		DBName:      s.Cfg.ClickHouse.Database,
		IsCluster:   s.Cfg.ClickHouse.Cluster,
		VersionInfo: info,
	})
	if err != nil {
		return "", err
	}

	rows, err := s.DB.QueryCtx(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	res := seriesResponse{Status: "success", Data: []map[string]string{}}
	for rows.Next() {
		var labels string
		if err := rows.Scan(&labels); err != nil {
			return "", err
		}
		set := map[string]string{}
		if err := json.UnmarshalFromString(labels, &set); err != nil {
			return "", err
		}
		res.Data = append(res.Data, set)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	return json.MarshalToString(res)
}
