package dbVersion

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/metrico/loghouse/reader/model"
	"github.com/metrico/loghouse/reader/utils/logger"
)

// VersionInfo maps schema feature flags to the unix second the feature was
// activated at. Data written before that moment lives in the older tables.
type VersionInfo map[string]int64

// A zero activation moment means the feature is disabled no matter the range.
func (v VersionInfo) IsVersionSupported(ver string, fromNS int64, toNS int64) bool {
	activatedAt, ok := v[ver]
	return ok && activatedAt > 0 && fromNS >= activatedAt*1000000000
}

// Provider reads the settings table and caches the result per database. The
// cache is dropped at most once per invalidation period.
type Provider struct {
	db   model.ISqlxDB
	dist bool

	mtx         sync.Mutex
	cached      VersionInfo
	invalidated int32

	InvalidateAfter time.Duration
}

func NewProvider(db model.ISqlxDB, dist bool) *Provider {
	return &Provider{
		db:              db,
		dist:            dist,
		InvalidateAfter: time.Second * 10,
	}
}

func (p *Provider) throttleInvalidate() {
	if !atomic.CompareAndSwapInt32(&p.invalidated, 0, 1) {
		return
	}
	go func() {
		time.Sleep(p.InvalidateAfter)
		atomic.StoreInt32(&p.invalidated, 0)
		p.mtx.Lock()
		p.cached = nil
		p.mtx.Unlock()
	}()
}

func (p *Provider) GetVersionInfo(ctx context.Context) (VersionInfo, error) {
	p.mtx.Lock()
	ver := p.cached
	p.mtx.Unlock()
	if ver != nil {
		return ver, nil
	}

	tableName := "settings"
	if p.dist {
		tableName += "_dist"
	}
	versions := VersionInfo{}
	rows, err := p.db.QueryCtx(ctx, fmt.Sprintf(
		`SELECT argMax(name, inserted_at) as _name, argMax(value, inserted_at) as _value
FROM %s WHERE type='update' GROUP BY fingerprint HAVING _name!=''`, tableName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name, val string
		if err = rows.Scan(&name, &val); err != nil {
			logger.Error(err)
			continue
		}
		if at, err := strconv.ParseInt(val, 10, 64); err == nil {
			versions[name] = at
		}
	}

	tables, err := p.db.QueryCtx(ctx, `SHOW TABLES`)
	if err != nil {
		return nil, err
	}
	defer tables.Close()
	metrics15s := false
	for tables.Next() {
		var table string
		if err = tables.Scan(&table); err != nil {
			logger.Error(err)
			continue
		}
		metrics15s = metrics15s || table == "metrics_15s" || table == "metrics_15s_dist"
	}
	if !metrics15s {
		versions["v5"] = 0
	}

	p.mtx.Lock()
	p.cached = versions
	p.mtx.Unlock()
	p.throttleInvalidate()
	return versions, nil
}
