package mirror

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dbacks-analysis/statcast-refresh/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	require.NoError(t, err)
	return d
}

func sampleDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.Read(strings.NewReader(
		"game_date,game_pk,at_bat_number,pitch_number,pitch_type,release_speed\n" +
			"2025-05-01,700001,1,1,FF,95.1\n" +
			"2025-06-01,700002,3,2,SL,88.4\n"))
	require.NoError(t, err)
	return ds
}

func TestSQLStatements(t *testing.T) {
	table := `"statcast_pitches"`

	create := createTableSQL(table)
	assert.Contains(t, create, "CREATE TABLE IF NOT EXISTS "+table)
	assert.Contains(t, create, "PRIMARY KEY (game_pk, at_bat_number, pitch_number)")
	assert.Contains(t, create, "payload       jsonb")

	assert.Equal(t, `DELETE FROM `+table+` WHERE game_date >= $1`, deleteWindowSQL(table))

	insert := insertRowSQL(table)
	assert.Contains(t, insert, "INSERT INTO "+table)
	assert.Contains(t, insert, "ON CONFLICT (game_pk, at_bat_number, pitch_number) DO NOTHING")
}

func TestWindowRowsFiltersByDate(t *testing.T) {
	ds := sampleDataset(t)

	rows := windowRows(ds, day(t, "2025-05-18"))
	require.Len(t, rows, 1)
	assert.Equal(t, 700002, rows[0].GamePK)

	assert.Len(t, windowRows(ds, day(t, "2025-01-01")), 2)
	assert.Empty(t, windowRows(ds, day(t, "2025-07-01")))
}

func TestRowArgs(t *testing.T) {
	ds := sampleDataset(t)
	args := rowArgs(ds, ds.Rows[1])

	require.Len(t, args, 5)
	assert.Equal(t, 700002, args[0])
	assert.Equal(t, 3, args[1])
	assert.Equal(t, 2, args[2])
	assert.Equal(t, day(t, "2025-06-01"), args[3])

	payload, ok := args[4].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, map[string]string{
		"pitch_type":    "SL",
		"release_speed": "88.4",
	}, payload, "key columns stay out of the payload")
}

func TestOpenRejectsBadConfig(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, "postgres://localhost/statcast", WithTable(""))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Open(ctx, "postgres://localhost/statcast", WithBatchSize(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Open(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
