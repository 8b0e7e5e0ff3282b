package metrics

import "time"

// FileRecorded records a file whose pipeline produced a record.
func FileRecorded() {
	FilesIngested.WithLabelValues("recorded").Inc()
}

// FileFailed records a file whose pipeline stopped at stage.
func FileFailed(stage string) {
	FilesIngested.WithLabelValues("failed_" + stage).Inc()
}

// ObserveStage records the time one file spent in a stage.
func ObserveStage(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// GatewayCall records the outcome of a remote gateway operation.
func GatewayCall(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	GatewayOps.WithLabelValues(op, status).Inc()
}

// CompensatingDelete records the outcome of a cleanup after a failed batch.
func CompensatingDelete(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	CompensatingDeletes.WithLabelValues(status).Inc()
}
