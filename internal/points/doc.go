// Package points distributes activity points from the college account.
//
// A distribution pays PerPoints to every activated person and OrgPoints to
// every activated organization whose balance is at or below the matching
// cap. Each run happens in one store transaction: balances are incremented
// in bulk with compiled updates, the proposer is debited, and one accepted
// transfer record is appended per recipient.
//
// The Scheduler runs distributions at their start time. Temporary ones run
// once; weekly and biweekly ones repeat every one or two weeks. Transfer
// record IDs depend on the run time, so a run that is retried after a crash
// cannot credit anyone twice.
package points
