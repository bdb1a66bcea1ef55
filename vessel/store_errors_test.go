package vessel

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/keelwatch/errors"
)

// Driver-level failures must surface as wrapped errors, never as panics or
// silent empty results.
func TestGetPropagatesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM vessels").
		WillReturnError(errors.New("disk I/O error"))

	_, err = NewStore(db).Get(context.Background(), "northdock", "hull-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.False(t, errors.IsNotFound(err), "driver failure misreported as not-found")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapBySourcePropagatesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM vessels").
		WillReturnError(errors.New("database is locked"))

	_, err = NewStore(db).MapBySource(context.Background(), "northdock")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapBySourcePropagatesScanError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// A row with the wrong column count forces a scan failure mid-iteration.
	rows := sqlmock.NewRows([]string{"source", "vessel_key"}).
		AddRow("northdock", "hull-1")
	mock.ExpectQuery("SELECT .* FROM vessels").WillReturnRows(rows)

	_, err = NewStore(db).MapBySource(context.Background(), "northdock")
	assert.Error(t, err)
}
