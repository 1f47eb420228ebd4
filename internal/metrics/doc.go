// Package metrics provides run metrics for backups.
//
// Components receive a Recorder through dependency injection. NoopRecorder is the
// default and does nothing; PrometheusRecorder is activated by the schedule command
// when metrics.listen is configured and served through HTTPHandler.
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	runner := backup.NewRunner(cfg, deps, backup.WithRecorder(recorder))
package metrics
