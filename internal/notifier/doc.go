// Package notifier forwards selected job lifecycle events to a chat.
//
// It consumes the scheduler's event bus on its own goroutine, so a slow or
// failing chat backend never delays a job. Sends are rate limited and retried
// with backoff; events that overflow the subscription buffer are dropped.
package notifier
