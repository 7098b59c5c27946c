package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid input"), false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"pg connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"pg cannot connect now", fmt.Errorf("ping: %w", &pgconn.PgError{Code: "57P03"}), true},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"pg undefined table", &pgconn.PgError{Code: "42P01"}, false},
		{"pg syntax", &pgconn.PgError{Code: "42601", Message: "database is locked"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
