// Package metrics reports bulk operation outcomes.
//
// # Reporters
//
// The executor takes a Reporter. Nop discards everything and is the default.
// Prometheus records a duration histogram plus row and failure counters on its own
// registry, labelled by engine, table, operation and status:
//
//	bulksync_operation_duration_seconds{engine,table,operation,status}
//	bulksync_operation_total{engine,table,operation,status}
//	bulksync_rows_total{engine,table,operation,action}
//	bulksync_failures_total{engine,table,operation,reason}
//
// # Usage
//
//	reporter := metrics.NewPrometheus("bulksync")
//	exec := bulk.NewExecutor(registry, bulk.WithReporter(reporter))
//	app.Get("/metrics", adaptor.HTTPHandler(reporter.Handler()))
package metrics
