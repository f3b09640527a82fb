// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlconn

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockConn(t *testing.T) (*Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	conn, err := New(context.Background(), db)
	require.NoError(t, err)
	return conn, mock
}

func TestPing(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectPing()
	require.NoError(t, conn.Ping(context.Background()))
	assert.True(t, conn.IsUsable())

	mock.ExpectPing().WillReturnError(sqldriver.ErrBadConn)
	require.Error(t, conn.Ping(context.Background()))
	assert.False(t, conn.IsUsable(), "bad connection marks the session broken")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPingTransientErrorKeepsUsable(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectPing().WillReturnError(errors.New("statement timeout"))
	require.Error(t, conn.Ping(context.Background()))
	assert.True(t, conn.IsUsable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutocommitLifecycle(t *testing.T) {
	conn, mock := newMockConn(t)
	assert.True(t, conn.Autocommit())

	mock.ExpectBegin()
	require.NoError(t, conn.SetAutocommit(false))
	assert.False(t, conn.Autocommit())

	mock.ExpectExec("INSERT INTO t").WillReturnResult(sqlmock.NewResult(1, 1))
	_, err := conn.ExecContext(context.Background(), "INSERT INTO t VALUES (1)")
	require.NoError(t, err)

	// Commit starts the next transaction while autocommit stays off.
	mock.ExpectCommit()
	mock.ExpectBegin()
	require.NoError(t, conn.Commit())

	mock.ExpectRollback()
	mock.ExpectBegin()
	require.NoError(t, conn.Rollback())

	mock.ExpectCommit()
	require.NoError(t, conn.SetAutocommit(true))
	assert.True(t, conn.Autocommit())

	// No open transaction: both are no-ops.
	require.NoError(t, conn.Commit())
	require.NoError(t, conn.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAutocommitSameValue(t *testing.T) {
	conn, mock := newMockConn(t)
	require.NoError(t, conn.SetAutocommit(true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAutocommitBeginFails(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectBegin().WillReturnError(sqldriver.ErrBadConn)
	require.Error(t, conn.SetAutocommit(false))
	assert.True(t, conn.Autocommit(), "mode unchanged on failure")
	assert.False(t, conn.IsUsable())
}

func TestCommitFailure(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectBegin()
	require.NoError(t, conn.SetAutocommit(false))

	errSerialization := errors.New("could not serialize access")
	mock.ExpectCommit().WillReturnError(errSerialization)
	mock.ExpectBegin()
	require.ErrorIs(t, conn.Commit(), errSerialization)
	assert.True(t, conn.IsUsable())
	assert.False(t, conn.Autocommit())

	// The reopened transaction still covers later statements.
	mock.ExpectExec("INSERT INTO t").WillReturnResult(sqlmock.NewResult(1, 1))
	_, err := conn.ExecContext(context.Background(), "INSERT INTO t VALUES (1)")
	require.NoError(t, err)
	mock.ExpectRollback()
	mock.ExpectBegin()
	require.NoError(t, conn.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFailureWithoutNextTransaction(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectBegin()
	require.NoError(t, conn.SetAutocommit(false))

	errSerialization := errors.New("could not serialize access")
	errBegin := errors.New("out of shared memory")
	mock.ExpectCommit().WillReturnError(errSerialization)
	mock.ExpectBegin().WillReturnError(errBegin)
	err := conn.Commit()
	require.ErrorIs(t, err, errSerialization)
	require.ErrorIs(t, err, errBegin)
	assert.False(t, conn.IsUsable(), "no transaction while autocommit is off")

	// Nothing may run outside the transaction the caller thinks is open.
	_, err = conn.ExecContext(context.Background(), "INSERT INTO t VALUES (1)")
	require.ErrorIs(t, err, ErrTxLost)
	require.NoError(t, conn.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackSucceedsButNextBeginFails(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectBegin()
	require.NoError(t, conn.SetAutocommit(false))

	mock.ExpectRollback()
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
	require.Error(t, conn.Rollback())
	assert.False(t, conn.IsUsable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnableAutocommitCommitFails(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectBegin()
	require.NoError(t, conn.SetAutocommit(false))

	errSerialization := errors.New("could not serialize access")
	mock.ExpectCommit().WillReturnError(errSerialization)
	mock.ExpectBegin()
	require.ErrorIs(t, conn.SetAutocommit(true), errSerialization)
	assert.False(t, conn.Autocommit(), "mode unchanged on failure")
	assert.True(t, conn.IsUsable())

	mock.ExpectExec("INSERT INTO t").WillReturnResult(sqlmock.NewResult(1, 1))
	_, err := conn.ExecContext(context.Background(), "INSERT INTO t VALUES (1)")
	require.NoError(t, err)
	mock.ExpectRollback()
	mock.ExpectBegin()
	require.NoError(t, conn.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnableAutocommitCommitAndBeginFail(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectBegin()
	require.NoError(t, conn.SetAutocommit(false))

	mock.ExpectCommit().WillReturnError(errors.New("could not serialize access"))
	mock.ExpectBegin().WillReturnError(errors.New("out of shared memory"))
	require.Error(t, conn.SetAutocommit(true))
	assert.False(t, conn.Autocommit())
	assert.False(t, conn.IsUsable())

	_, err := conn.ExecContext(context.Background(), "INSERT INTO t VALUES (1)")
	require.ErrorIs(t, err, ErrTxLost)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseRollsBackOpenTransaction(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectBegin()
	require.NoError(t, conn.SetAutocommit(false))

	mock.ExpectRollback()
	mock.ExpectClose()
	require.NoError(t, conn.Close())
	assert.False(t, conn.IsUsable())

	require.NoError(t, conn.Close(), "second close is a no-op")
	require.ErrorIs(t, conn.Ping(context.Background()), sql.ErrConnDone)
	require.ErrorIs(t, conn.Commit(), sql.ErrConnDone)
	require.ErrorIs(t, conn.SetAutocommit(false), sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", sqldriver.ErrBadConn, true},
		{"wrapped conn done", errors.Join(errors.New("exec"), sql.ErrConnDone), true},
		{"mysql invalid conn", mysql.ErrInvalidConn, true},
		{"pq connection failure", &pq.Error{Code: "08006"}, true},
		{"pq admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"pq unique violation", &pq.Error{Code: "23505"}, false},
		{"other", errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectionError(tt.err))
		})
	}
}
