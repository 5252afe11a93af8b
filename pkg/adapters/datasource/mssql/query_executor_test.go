package mssql

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mssqldb "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/exim-agent/pkg/apperrors"
	tsql "github.com/ekaya-inc/exim-agent/pkg/sql"
)

func newTestSession(t *testing.T) (*Session, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	session, err := NewExecutor(db, zaptest.NewLogger(t)).Session(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session, mock
}

func TestSession_Query_FormatsRows(t *testing.T) {
	session, mock := newTestSession(t)

	query := "SELECT TOP 15 BE_Number, BE_Date, Product, Total_Value_INR FROM View_Clean_Imports"
	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("BE_Number").OfType("DECIMAL", []byte{}),
		sqlmock.NewColumn("BE_Date").OfType("DATE", time.Time{}),
		sqlmock.NewColumn("Product").OfType("NVARCHAR", ""),
		sqlmock.NewColumn("Total_Value_INR").OfType("DECIMAL", []byte{}),
	).
		AddRow([]byte("2024001234"), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), "ZINC", []byte("1500.25")).
		AddRow([]byte("2024001235"), nil, nil, nil)
	mock.ExpectQuery(query).WillReturnRows(rows)

	result, err := session.Query(context.Background(), query+";")
	require.NoError(t, err)

	assert.Equal(t, query, result.SQL)
	assert.False(t, result.Repaired)
	require.Equal(t, 2, result.Len())
	assert.Equal(t, []string{"BE_Number", "BE_Date", "Product", "Total_Value_INR"}, result.Columns)
	assert.Equal(t, []any{"2024001234", "05-Jan-2024", "ZINC", 1500.25}, result.Rows[0].Values())
	assert.Equal(t, []any{"2024001235", nil, nil, nil}, result.Rows[1].Values())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_Query_EmptyResult(t *testing.T) {
	session, mock := newTestSession(t)

	query := "SELECT Product FROM View_Clean_Imports WHERE 1 = 0"
	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"Product"}))

	result, err := session.Query(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Len())
	assert.NotNil(t, result.Rows)
}

func TestSession_Query_RepairsNameEquality(t *testing.T) {
	session, mock := newTestSession(t)

	query := "SELECT * FROM View_Clean_Imports WHERE Importer_Name = 'Acme'"
	repaired := "SELECT * FROM View_Clean_Imports WHERE Importer_Name LIKE '%Acme%'"

	mock.ExpectQuery(query).WillReturnError(mssqldb.Error{Number: 207, Message: "Invalid column name 'Importer_Name'."})
	mock.ExpectQuery(repaired).WillReturnRows(sqlmock.NewRows([]string{"Importer_Name"}).AddRow("ACME LTD"))

	result, err := session.Query(context.Background(), query)
	require.NoError(t, err)
	assert.True(t, result.Repaired)
	assert.Equal(t, repaired, result.SQL)
	require.Equal(t, 1, result.Len())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_Query_RepairFailsOnce(t *testing.T) {
	session, mock := newTestSession(t)

	query := "SELECT * FROM View_Clean_Imports WHERE Product_Name = 'zinc'"
	repaired := "SELECT * FROM View_Clean_Imports WHERE Product_Name LIKE '%zinc%'"

	mock.ExpectQuery(query).WillReturnError(mssqldb.Error{Number: 102, Message: "Incorrect syntax near 'zinc'."})
	mock.ExpectQuery(repaired).WillReturnError(mssqldb.Error{Number: 102, Message: "Incorrect syntax near 'zinc'."})

	_, err := session.Query(context.Background(), query)
	require.Error(t, err)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, KindSyntax, execErr.Kind)
	assert.Equal(t, repaired, execErr.Query)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_Query_NoRepairWhenNothingToRewrite(t *testing.T) {
	session, mock := newTestSession(t)

	query := "SELECT Bogus FROM View_Clean_Imports"
	mock.ExpectQuery(query).WillReturnError(mssqldb.Error{Number: 207, Message: "Invalid column name 'Bogus'."})

	_, err := session.Query(context.Background(), query)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, KindInvalidColumn, execErr.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_Query_OtherErrorsNotRetried(t *testing.T) {
	session, mock := newTestSession(t)

	query := "SELECT * FROM View_Clean_Imports WHERE Importer_Name = 'Acme'"
	mock.ExpectQuery(query).WillReturnError(mssqldb.Error{Number: 229, Message: "The SELECT permission was denied"})

	_, err := session.Query(context.Background(), query)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, KindOther, execErr.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_Query_GuardRejectsBeforeDriver(t *testing.T) {
	session, mock := newTestSession(t)

	for _, query := range []string{
		"DELETE FROM View_Clean_Imports",
		"SELECT 1; DROP TABLE View_Clean_Imports",
		"",
	} {
		_, err := session.Query(context.Background(), query)
		assert.ErrorIs(t, err, apperrors.ErrStatementRejected, query)

		var stmtErr *tsql.StatementError
		assert.ErrorAs(t, err, &stmtErr, query)
	}

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_Query_ContextErrorPassesThrough(t *testing.T) {
	session, mock := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	query := "SELECT 1"
	mock.ExpectQuery(query).WillReturnError(errors.New("driver: bad connection"))
	cancel()

	_, err := session.Query(ctx, query)
	assert.ErrorIs(t, err, context.Canceled)

	var execErr *ExecError
	assert.False(t, errors.As(err, &execErr))
}

func TestSession_SharesOneConnection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	executor := NewExecutor(db, zaptest.NewLogger(t))
	session, err := executor.Session(context.Background())
	require.NoError(t, err)

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT 2").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(2)))

	_, err = session.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)
	_, err = session.Query(context.Background(), "SELECT 2")
	require.NoError(t, err)

	// The pool's only connection is held by the session until Close.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = db.Conn(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, session.Close())
	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	conn.Close()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_TestConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(1))
	adapter := NewAdapter(db, zaptest.NewLogger(t))
	assert.NoError(t, adapter.TestConnection(context.Background()))

	mock.ExpectQuery("SELECT 1").WillReturnError(sql.ErrConnDone)
	assert.Error(t, adapter.TestConnection(context.Background()))
}
