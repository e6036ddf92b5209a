package db

import (
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/lib/pq"
)

// ErrListenerClosed is returned when the notification connection is gone
var ErrListenerClosed = errors.New("notification connection closed")

// IsConnErr reports whether err indicates a lost or unusable connection,
// as opposed to a statement-level failure. Connection errors send the
// event loop through the reconnect cycle; anything else stays local to
// the sync that hit it.
func IsConnErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, ErrListenerClosed) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 = connection exception, class 57 = operator
		// intervention (server shutdown, connection cancelled)
		class := pqErr.Code.Class()
		return class == "08" || class == "57"
	}

	return false
}
