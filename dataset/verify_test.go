package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyEmptyDataset(t *testing.T) {
	ds := New(DefaultRequiredColumns...)

	res := Verify(ds, DefaultVerifyConfig())
	assert.False(t, res.OK)
	assert.Equal(t, ReasonEmptyDataset, res.Reason)
}

func TestVerifyMissingRequiredColumns(t *testing.T) {
	ds := mustRead(t, `
game_date,game_pk,at_bat_number,pitch_number
2025-06-01,778001,1,1
`)

	res := Verify(ds, DefaultVerifyConfig())
	assert.Equal(t, ReasonMissingColumns, res.Reason)
	assert.Contains(t, res.Detail, "player_name")
}

func TestVerifyInvalidGameDate(t *testing.T) {
	ds := New(ColGameDate, ColGamePK, ColAtBatNumber, ColPitchNumber)
	ds.Rows = append(ds.Rows,
		Record{GameDate: day(t, "2025-06-01"), GamePK: 1, AtBatNumber: 1, PitchNumber: 1, Fields: []string{"2025-06-01", "1", "1", "1"}},
		Record{GamePK: 1, AtBatNumber: 1, PitchNumber: 2, Fields: []string{"", "1", "1", "2"}},
	)

	res := Verify(ds, VerifyConfig{MinRows: 1})
	assert.Equal(t, ReasonInvalidGameDate, res.Reason)
	assert.Contains(t, res.Detail, "row 1")
}

func TestVerifyRowCountBelowFloor(t *testing.T) {
	ds := mustRead(t, `
pitch_type,game_date,player_name,batter,pitcher,game_pk,at_bat_number,pitch_number
FF,2025-06-01,X,1,2,778001,1,1
FF,2025-06-01,X,1,2,778001,1,2
`)

	res := Verify(ds, DefaultVerifyConfig())
	assert.Equal(t, ReasonRowCountBelowFloor, res.Reason)
	assert.Contains(t, res.Detail, "floor 100")
}

func TestVerifyOK(t *testing.T) {
	ds := mustRead(t, `
pitch_type,game_date,player_name,batter,pitcher,game_pk,at_bat_number,pitch_number
FF,2025-06-01,X,1,2,778001,1,1
SL,2025-06-01,X,1,2,778001,1,2
`)

	res := Verify(ds, VerifyConfig{RequiredColumns: DefaultRequiredColumns, MinRows: 2})
	assert.True(t, res.OK)
	assert.Equal(t, ReasonNone, res.Reason)
	assert.Contains(t, res.Detail, "2 rows")
}

func TestVerifyZeroConfigDisablesThresholds(t *testing.T) {
	ds := mustRead(t, `
game_date,game_pk,at_bat_number,pitch_number
2025-06-01,778001,1,1
`)

	res := Verify(ds, VerifyConfig{})
	assert.True(t, res.OK)
}

func TestVerifyFileMapsDecodeFailures(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultVerifyConfig()

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.Equal(t, ReasonEmptyDataset, VerifyFile(empty, cfg).Reason)

	noKeys := filepath.Join(dir, "nokeys.csv")
	require.NoError(t, os.WriteFile(noKeys, []byte("a,b\n1,2\n"), 0o644))
	assert.Equal(t, ReasonMissingColumns, VerifyFile(noKeys, cfg).Reason)

	badDate := filepath.Join(dir, "baddate.csv")
	require.NoError(t, os.WriteFile(badDate,
		[]byte("game_date,game_pk,at_bat_number,pitch_number\nJune 1,778001,1,1\n"), 0o644))
	assert.Equal(t, ReasonInvalidGameDate, VerifyFile(badDate, cfg).Reason)

	assert.Equal(t, ReasonUnreadable, VerifyFile(filepath.Join(dir, "missing.csv"), cfg).Reason)
}

func TestValidationResultString(t *testing.T) {
	ok := ValidationResult{OK: true, Detail: "120 rows, 9 columns"}
	assert.Equal(t, "ok: 120 rows, 9 columns", ok.String())

	bad := ValidationResult{Reason: ReasonEmptyDataset, Detail: "dataset has no rows"}
	assert.Equal(t, "empty_dataset: dataset has no rows", bad.String())
}
