package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE classes and codes worth retrying on connect.
const (
	pgClassConnection    = "08"    // connection_exception
	pgCannotConnectNow   = "57P03" // cannot_connect_now
	pgTooManyConnections = "53300" // too_many_connections
)

// IsTransient reports whether err looks like a temporary connectivity
// failure: network timeouts, refused or reset connections, DNS failures, or
// a Postgres server that is not yet accepting connections.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, pgClassConnection) ||
			pgErr.Code == pgCannotConnectNow ||
			pgErr.Code == pgTooManyConnections
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection refused",
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"temporary failure in name resolution",
		"i/o timeout",
		"the database system is starting up",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
