package schedule

import "github.com/cockroachdb/errors"

// ErrInvalidCron marks every error caused by an unusable cron expression.
var ErrInvalidCron = errors.New("invalid cron expression")
