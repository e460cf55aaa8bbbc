package repository

import "errors"

// ErrNotClaimed is returned by queue updates when the row is no longer PROCESSING,
// for instance after the stale sweep handed it to another worker.
var ErrNotClaimed = errors.New("queue item is not claimed")
