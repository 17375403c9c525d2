// Package cron materializes recurring schedules into jobs.
//
// A [Schedule] is a recurring job template: a cron expression evaluated in
// a time zone, a payload and a misfire policy. Schedules are stored by
// their job key and polled when due, much like jobs: the [Poller] leases
// due schedules under a scheduler-scoped lease token while holding an
// advisory lock, and the [Processor] expands each schedule's occurrences
// up to a horizon into jobs.
//
// # Expressions
//
// Expressions use the standard five fields with an optional leading
// seconds field, plus descriptors:
//
//	"0 9 * * 1-5"     09:00 on weekdays
//	"*/10 * * * * *"  every ten seconds
//	"@hourly"
//	"@every 30s"
//
// # Misfires
//
// An occurrence at or before the processing time is late. Occurrences
// between the processing time and the horizon are emitted as they are. The
// [MisfirePolicy] decides what happens to late ones:
//   - [MisfireIgnore] keeps only the latest, and only if it is within the
//     misfire threshold. The rest are skipped.
//   - [MisfireExecuteNow] keeps a single late occurrence within the
//     threshold as it is and otherwise collapses them into one job now.
//   - [MisfireCatchUp] emits each of them, oldest first, up to MaxCatchUp.
//
// Every spawned job carries the idempotency key
// "{jobKey}:*:{occurrence}", so processing the same occurrence twice
// never creates two jobs.
//
// # Scheduler
//
// The [Scheduler] owns the poller goroutine. On Stop it cancels polling,
// waits for the in-flight cycle and releases any schedules still leased
// under its token.
package cron
