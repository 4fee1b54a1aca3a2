package metadata

import (
	"testing"

	"github.com/hummify/hummify-backend/internal/platform/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	database.DB = db
	require.NoError(t, PrimeCachedDB())
}

func TestPrimeCachedDBRecordsSchemaVersion(t *testing.T) {
	setupTestDB(t)

	v, err := GetValue(database.DB, SchemaVersionKey)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)

	// 再次初始化是幂等的
	require.NoError(t, PrimeCachedDB())
	v, err = GetValue(database.DB, SchemaVersionKey)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)
}

func TestReconcileWatermarkRoundTrip(t *testing.T) {
	setupTestDB(t)

	// 未登记时返回零值而不是错误
	ts, err := GetLastReconcileUnix(database.DB)
	require.NoError(t, err)
	assert.EqualValues(t, 0, ts)

	require.NoError(t, SetLastReconcileUnix(database.DB, 1724900000))
	ts, err = GetLastReconcileUnix(database.DB)
	require.NoError(t, err)
	assert.EqualValues(t, 1724900000, ts)

	// 重复写入走upsert覆盖
	require.NoError(t, SetLastReconcileUnix(database.DB, 1724900100))
	ts, err = GetLastReconcileUnix(database.DB)
	require.NoError(t, err)
	assert.EqualValues(t, 1724900100, ts)
}
