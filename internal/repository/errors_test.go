package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"mysql deadlock", &mysql.MySQLError{Number: mysqlDeadlock}, true},
		{"mysql lock wait", &mysql.MySQLError{Number: mysqlLockWaitTimeout}, true},
		{"mysql duplicate", &mysql.MySQLError{Number: mysqlDuplicateEntry}, false},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, true},
		{"pg admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"pg unique", &pgconn.PgError{Code: "23505"}, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"plain", errors.New("syntax error"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, IsTransient(c.err))
		})
	}
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, IsDuplicate(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicate(&mysql.MySQLError{Number: mysqlDuplicateEntry}))
	assert.True(t, IsDuplicate(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicate(errors.New("UNIQUE constraint failed: feed_entries.user_id")))
	assert.False(t, IsDuplicate(&mysql.MySQLError{Number: mysqlDeadlock}))
	assert.False(t, IsDuplicate(nil))
}
