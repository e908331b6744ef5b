package output

import (
	"context"
	"time"
)

// MetricsRecorder receives operational counters from the managers.
// telemetry.Recorder implements it on top of OpenTelemetry.
type MetricsRecorder interface {
	RecordEscalation(ctx context.Context, success bool, d time.Duration)
	RecordCacheLookup(ctx context.Context, hit bool)
	RecordStoryOp(ctx context.Context, op string)
	RecordMemoryOp(ctx context.Context, op string)
	RecordSessionOp(ctx context.Context, op string)
}
