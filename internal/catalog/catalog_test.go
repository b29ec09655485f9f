package catalog

import (
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/torua-master/internal/cluster"
)

func TestRegionNames(t *testing.T) {
	assert.Equal(t, RootRegionName, RegionName(RootTableName, "", 0))
	assert.Equal(t, FirstMetaRegionName, RegionName(MetaTableName, "", 1))

	assert.True(t, IsRootRegion(RootRegionName))
	assert.False(t, IsMetaRegion(RootRegionName))
	assert.True(t, IsMetaRegion(".META.,users,5"))
	assert.True(t, IsCatalogRegion(FirstMetaRegionName))
	assert.False(t, IsCatalogRegion("users,,1"))
	assert.Equal(t, "users", TableOf("users,a,1"))
	assert.Equal(t, "bare", TableOf("bare"))
}

func TestEncodeDecodeRow(t *testing.T) {
	row := cluster.CatalogRow{
		Region: "users,a,7", Table: "users", StartKey: "a", EndKey: "m",
		Server: "http://n1:8081", StartCode: "abc",
	}
	data, err := EncodeRow(row)
	require.NoError(t, err)

	got, err := DecodeRow(data)
	require.NoError(t, err)
	assert.Equal(t, row, got)

	_, err = DecodeRow([]byte("nope"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		parent string
		row    cluster.CatalogRow
		valid  bool
	}{
		{
			name:   "meta row under root",
			parent: RootRegionName,
			row:    cluster.CatalogRow{Region: FirstMetaRegionName, Table: MetaTableName},
			valid:  true,
		},
		{
			name:   "user row under meta",
			parent: FirstMetaRegionName,
			row:    cluster.CatalogRow{Region: "t,a,1", Table: "t", StartKey: "a", EndKey: "b", Server: "s"},
			valid:  true,
		},
		{
			name:   "empty region",
			parent: RootRegionName,
			row:    cluster.CatalogRow{Table: MetaTableName},
		},
		{
			name:   "table mismatch",
			parent: FirstMetaRegionName,
			row:    cluster.CatalogRow{Region: "t,,1", Table: "u"},
		},
		{
			name:   "inverted keys",
			parent: FirstMetaRegionName,
			row:    cluster.CatalogRow{Region: "t,z,1", Table: "t", StartKey: "z", EndKey: "a"},
		},
		{
			name:   "start code without server",
			parent: FirstMetaRegionName,
			row:    cluster.CatalogRow{Region: "t,,1", Table: "t", StartCode: "x"},
		},
		{
			name:   "root row under meta",
			parent: FirstMetaRegionName,
			row:    cluster.CatalogRow{Region: RootRegionName, Table: RootTableName},
		},
		{
			name:   "non catalog parent",
			parent: "t,,1",
			row:    cluster.CatalogRow{Region: "t,a,1", Table: "t"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.parent, tt.row)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, ErrInvalidRow, errors.Cause(err))
		})
	}
}
