package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestErrorReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("write: %w", context.DeadlineExceeded), ReasonDeadlineExceeded},
		{"pg_unique", &pgconn.PgError{Code: "23505"}, ReasonUniqueViolation},
		{"gorm_unique", gorm.ErrDuplicatedKey, ReasonUniqueViolation},
		{"mysql_unique", &mysql.MySQLError{Number: 1062}, ReasonUniqueViolation},
		{"sqlite_unique", errors.New("UNIQUE constraint failed: raw_records.id"), ReasonUniqueViolation},
		{"pg_lock", &pgconn.PgError{Code: "55P03"}, ReasonLockTimeout},
		{"mysql_lock", &mysql.MySQLError{Number: 1205}, ReasonLockTimeout},
		{"pg_serialization", fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40001"}), ReasonSerializationFailure},
		{"pg_deadlock", &pgconn.PgError{Code: "40P01"}, ReasonDeadlock},
		{"mysql_deadlock", &mysql.MySQLError{Number: 1213}, ReasonDeadlock},
		{"pg_connection", &pgconn.PgError{Code: "08006"}, ReasonConnection},
		{"mysql_bad_conn", mysql.ErrInvalidConn, ReasonConnection},
		{"other", errors.New("boom"), ReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorReason(tc.err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("serialization failures should be retryable")
	}
	if IsRetryable(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violations should not be retryable")
	}
	if IsRetryable(nil) {
		t.Fatalf("nil should not be retryable")
	}
}

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN(Config{User: "sim", Password: "p@ss", Host: "db", Port: "3306", Name: "raw"})
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	if parsed.Addr != "db:3306" || parsed.DBName != "raw" || !parsed.ParseTime {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	if parsed.Passwd != "p@ss" {
		t.Fatalf("password not preserved")
	}
}

func TestDialect(t *testing.T) {
	if _, err := Dialect(Config{Type: "oracle"}); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
	d, err := Dialect(Config{Type: "Postgres", Host: "localhost", Port: "5432"})
	if err != nil {
		t.Fatalf("dialect: %v", err)
	}
	if d.Name() != "postgres" {
		t.Fatalf("expected postgres dialector, got %s", d.Name())
	}
	if !strings.Contains(PostgresDSN(Config{}), "sslmode=disable") {
		t.Fatalf("expected sslmode default")
	}
}
