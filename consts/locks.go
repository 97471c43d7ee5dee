package consts

// Lock row names used in the locks table. A lock row with an unexpired
// expires_at is held; stale rows are taken over on the next acquire.
const (
	SweepLockName = "sweep_worker"
	PurgeLockName = "purge_worker"
)
