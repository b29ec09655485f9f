package region

import (
	"io"
	"testing"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dreamware/torua-master/internal/catalog"
	"github.com/dreamware/torua-master/internal/cluster"
	"github.com/dreamware/torua-master/internal/storage"
)

func metaRow(startKey, endKey, server string) cluster.CatalogRow {
	return cluster.CatalogRow{
		Region:    catalog.RegionName(catalog.MetaTableName, startKey, 1),
		Table:     catalog.MetaTableName,
		StartKey:  startKey,
		EndKey:    endKey,
		Server:    server,
		StartCode: "sc-1",
	}
}

// TestNew tests region creation
func TestNew(t *testing.T) {
	r := New(catalog.RootRegionName, storage.NewMemoryStore())

	require.NotNil(t, r)
	assert.Equal(t, catalog.RootRegionName, r.Name)
	assert.Equal(t, StateOnline, r.State())
	assert.NotNil(t, r.Stats)
}

// TestRowsAreOrdered verifies a scan returns rows sorted by region name
func TestRowsAreOrdered(t *testing.T) {
	r := New(catalog.RootRegionName, storage.NewMemoryStore())

	require.NoError(t, r.PutRow(metaRow("m", "", "http://b")))
	require.NoError(t, r.PutRow(metaRow("", "m", "http://a")))

	rows, err := r.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "", rows[0].StartKey)
	assert.Equal(t, "m", rows[1].StartKey)

	assert.Equal(t, uint64(1), r.GetStats().Scans)
	assert.Equal(t, uint64(2), r.GetStats().Puts)
}

// TestPutRowValidation tests that rows are checked against their parent region
func TestPutRowValidation(t *testing.T) {
	tests := []struct {
		name    string
		parent  string
		row     cluster.CatalogRow
		wantErr bool
	}{
		{
			name:   "meta row in root",
			parent: catalog.RootRegionName,
			row:    metaRow("", "", "http://a"),
		},
		{
			name:   "user row in root",
			parent: catalog.RootRegionName,
			row: cluster.CatalogRow{
				Region: "users,,1", Table: "users",
			},
			wantErr: true,
		},
		{
			name:   "user row in meta",
			parent: catalog.FirstMetaRegionName,
			row: cluster.CatalogRow{
				Region: "users,,1", Table: "users", Server: "http://a",
			},
		},
		{
			name:    "meta row in meta",
			parent:  catalog.FirstMetaRegionName,
			row:     metaRow("", "", ""),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.parent, storage.NewMemoryStore())
			err := r.PutRow(tt.row)
			if tt.wantErr {
				assert.Equal(t, catalog.ErrInvalidRow, errors.Cause(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

// TestRowsCorruptValue verifies an undecodable row fails the scan
func TestRowsCorruptValue(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Put(".META.,,1", []byte("{not json")))

	r := New(catalog.RootRegionName, store)
	_, err := r.Rows()
	assert.Error(t, err)
}

// TestClosedRegion verifies a closed region refuses every operation
func TestClosedRegion(t *testing.T) {
	r := New(catalog.RootRegionName, storage.NewMemoryStore())
	require.NoError(t, r.PutRow(metaRow("", "", "http://a")))
	require.NoError(t, r.Close())

	_, err := r.Rows()
	assert.Equal(t, ErrNotServing, errors.Cause(err))
	assert.Equal(t, ErrNotServing, errors.Cause(r.PutRow(metaRow("", "", "http://a"))))
	assert.Equal(t, ErrNotServing, errors.Cause(r.DeleteRow(".META.,,1")))
	assert.Equal(t, StateClosed, r.Info().State)
}

// TestDeleteRow tests removal of a single row
func TestDeleteRow(t *testing.T) {
	r := New(catalog.RootRegionName, storage.NewMemoryStore())
	row := metaRow("", "", "http://a")
	require.NoError(t, r.PutRow(row))
	require.NoError(t, r.DeleteRow(row.Region))

	rows, err := r.Rows()
	require.NoError(t, err)
	assert.Empty(t, rows)

	info := r.Info()
	assert.Equal(t, 0, info.RowCount)
}

// brokenStatsStore is a store that cannot report its size.
type brokenStatsStore struct {
	*storage.MemoryStore
}

func (brokenStatsStore) Stats() (storage.StoreStats, error) {
	return storage.StoreStats{}, errors.New("disk I/O error")
}

// TestInfoStatsError verifies a failing store is reported, not hidden
func TestInfoStatsError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log.ReplaceGlobals(zap.New(core), &log.ZapProperties{
		Core:   core,
		Syncer: zapcore.AddSync(io.Discard),
		Level:  zap.NewAtomicLevelAt(zapcore.WarnLevel),
	})
	t.Cleanup(func() {
		lg, props, err := log.InitLogger(&log.Config{Level: "info"})
		if err == nil {
			log.ReplaceGlobals(lg, props)
		}
	})

	r := New(catalog.RootRegionName, brokenStatsStore{storage.NewMemoryStore()})
	info := r.Info()
	assert.Equal(t, 0, info.RowCount)
	assert.Equal(t, StateOnline, info.State)

	entries := logs.FilterMessage("read region store stats failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, catalog.RootRegionName, entries[0].ContextMap()["region"])
}
