package pglog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/standards-harvester/internal/eventlog"
)

func TestRecordInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	log, err := NewWithPool(mock, "")
	require.NoError(t, err)

	entry := eventlog.Entry{
		Timestamp: time.Unix(1700000000, 0).UTC(),
		URL:       "https://example.com/2022/doc.pdf",
		Domain:    "example.com",
		Year:      "2022",
		FilePath:  "downloads/example.com/2022/doc.pdf",
	}
	mock.ExpectExec("INSERT INTO downloads").
		WithArgs(entry.Timestamp, entry.URL, entry.Domain, entry.Year, entry.FilePath).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, log.Record(context.Background(), entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordWrapsErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	log, err := NewWithPool(mock, "harvest_log")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO harvest_log").WillReturnError(boom)

	err = log.Record(context.Background(), eventlog.Entry{URL: "u"})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	log, err := NewWithPool(mock, "downloads")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS downloads").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, log.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecent(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	log, err := NewWithPool(mock, "downloads")
	require.NoError(t, err)

	ts := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"downloaded_at", "url", "domain", "year", "file_path"}).
		AddRow(ts, "https://example.com/b.pdf", "example.com", "2021", "downloads/example.com/2021/b.pdf").
		AddRow(ts.Add(-time.Hour), "https://example.com/a.pdf", "example.com", "2020", "downloads/example.com/2020/a.pdf")
	mock.ExpectQuery("SELECT downloaded_at, url, domain, year, file_path").
		WithArgs(5).
		WillReturnRows(rows)

	entries, err := log.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "https://example.com/b.pdf", entries[0].URL)
	assert.Equal(t, "2020", entries[1].Year)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "downloads")
	assert.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, "downloads; DROP TABLE x")
	assert.Error(t, err)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
