package provisioner

import "context"

// ScheduleRegistrar is the capability a scheduling=timescaledb vectorizer
// talks to in order to register/unregister its repeating pass. The
// scheduler itself (a TimescaleDB background job) is out of scope per
// spec.md's non-goals ("does not schedule itself") — this interface is
// the seam a real `timescaledb_toolkit`/`pg_cron`-backed implementation
// would satisfy.
type ScheduleRegistrar interface {
	RegisterJob(ctx context.Context, vectorizerID int64, interval string) (jobID int64, err error)
	UnregisterJob(ctx context.Context, jobID int64) error
}

// NoopScheduleRegistrar is used when scheduling.implementation=none;
// both methods are unreachable in that path but the type keeps callers
// from having to nil-check a ScheduleRegistrar that was never configured.
type NoopScheduleRegistrar struct{}

func (NoopScheduleRegistrar) RegisterJob(context.Context, int64, string) (int64, error) {
	return 0, nil
}

func (NoopScheduleRegistrar) UnregisterJob(context.Context, int64) error {
	return nil
}
