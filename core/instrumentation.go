package orchestration

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-phone/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	activeSessions, _ = meter.Int64UpDownCounter("sessions.active",
		metric.WithDescription("Number of open media-stream sessions"))
	completedTurns, _ = meter.Int64Counter("turns.completed",
		metric.WithDescription("Turns that finished without error"))
	failedTurns, _ = meter.Int64Counter("turns.failed",
		metric.WithDescription("Turns that ended with an error frame"))
	droppedTurns, _ = meter.Int64Counter("turns.dropped",
		metric.WithDescription("Utterances dropped because the turn queue was full"))
	turnDuration, _ = meter.Float64Histogram("turn.duration",
		metric.WithDescription("Time from dequeuing an utterance to the last frame of its turn"),
		metric.WithUnit("s"))
)
