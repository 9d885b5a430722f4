// Package schedule is cronloop's in-process cron job scheduler.
//
// # Overview
//
// A Job binds a cron expression to a Runner and a JobContext holding the
// job's lifecycle state. A Scheduler owns a set of jobs and is advanced by an
// external driver: the driver sizes its sleep with TimeTillNextJob and then
// calls Tick.
//
// # Catch-up
//
// Every Tick replays, in ascending order, each occurrence that became due
// since the job's previous tick. The window is anchored to the previous tick
// time, not to the last run, so a stalled driver never builds an unbounded
// backlog. Occurrences that fall due while a job is disabled are skipped and
// never replayed.
//
// # Lifecycle
//
// A job with a bounded run count fuses when the count reaches zero. Fused jobs
// are removed at the end of the Tick sweep that observed them fused. Execute
// runs every job once regardless of schedule or disabled flag and never
// prunes.
//
// # Schedule formats
//
// Expressions are parsed by robfig/cron with optional seconds:
//
//   - 5 fields (min hour dom mon dow): "*/5 * * * *"
//   - 6 fields with seconds: "0 */5 * * * *"
//   - descriptors: "@hourly", "@daily", "@every 90s"
package schedule
