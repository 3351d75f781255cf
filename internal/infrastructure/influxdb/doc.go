// Package influxdb records migration metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched point writing and health monitoring.
//
// # Measurements
//
//	migration_step  tags: key, status       fields: run_id, version, executed,
//	                                                commands, vacuumed, duration_ms
//	migration_run   tags: clean             fields: run_id, keys, applied,
//	                                                already_applied, skipped, failed,
//	                                                not_attempted, diagnostics, duration_ms
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteMigrationStep(influxdb.StepMetric{Key: "main", Version: 2, Status: "applied"})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered to the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
