package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/doorplate-crawler/internal/entity"
)

func TestBuildSearchQuery(t *testing.T) {
	t.Run("no filter", func(t *testing.T) {
		q, args := buildSearchQuery(entity.RecordFilter{})
		assert.Contains(t, q, "WHERE TRUE")
		assert.Contains(t, q, "LIMIT $1")
		assert.Equal(t, []any{defaultSearchLimit}, args)
	})

	t.Run("all fields", func(t *testing.T) {
		q, args := buildSearchQuery(entity.RecordFilter{
			City:      "臺北市",
			District:  "松山區",
			EditType:  "1",
			StartDate: "114-01-01",
			EndDate:   "114-01-31",
			Limit:     20,
		})
		assert.Contains(t, q, "city = $1 AND district = $2 AND edit_type_code = $3 AND edit_date >= $4 AND edit_date <= $5")
		assert.Contains(t, q, "LIMIT $6")
		assert.Equal(t, []any{"臺北市", "松山區", "1", "114-01-01", "114-01-31", 20}, args)
	})

	t.Run("sparse fields renumber placeholders", func(t *testing.T) {
		q, args := buildSearchQuery(entity.RecordFilter{District: "大安區", EndDate: "114-02-01"})
		assert.Contains(t, q, "district = $1 AND edit_date <= $2")
		assert.Equal(t, []any{"大安區", "114-02-01", defaultSearchLimit}, args)
	})
}

func TestNullableID(t *testing.T) {
	assert.Nil(t, nullableID(0))
	require.NotNil(t, nullableID(42))
	assert.Equal(t, int64(42), *nullableID(42))
}

func TestMigrationFiles(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "migrations/001_init.sql", names[0])

	sql, err := migrationFS.ReadFile(names[0])
	require.NoError(t, err)
	for _, table := range []string{"crawl_batches", "household_records", "district_query_results", "notification_recipients"} {
		assert.True(t, strings.Contains(string(sql), "CREATE TABLE IF NOT EXISTS "+table), table)
	}
}
