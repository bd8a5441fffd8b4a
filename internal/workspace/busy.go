package workspace

import (
	"context"
	"errors"
	"strings"
	"time"
)

// busyBackoff is the wait before each retry of a statement that hit a lock
// held by another connection (the daemon and an embedded CLI share the file).
var busyBackoff = []time.Duration{
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	80 * time.Millisecond,
}

const sqliteBusy = 5

func isBusy(err error) bool {
	var coded interface{ Code() int }
	if errors.As(err, &coded) && coded.Code()&0xff == sqliteBusy {
		return true
	}
	return err != nil && (strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked"))
}

// retryOnBusy runs op, retrying on SQLITE_BUSY until busyBackoff runs out.
func retryOnBusy(ctx context.Context, op func() error) error {
	err := op()
	for _, wait := range busyBackoff {
		if !isBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		err = op()
	}
	return err
}
