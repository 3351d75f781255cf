// Package mqtt publishes sqlitestore status and migration results to an
// MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for detecting an aborted run
//   - Retained JSON payloads for the latest migration results
//
// # Topics
//
// Every topic lives under a configurable prefix (default "sqlitestore"):
//
//	<prefix>/status                  online/offline (retained, also the LWT)
//	<prefix>/migrations/report       latest full migration report (retained)
//	<prefix>/migrations/<key>        latest result for one database (retained)
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) for anything but a local broker
//   - Credentials are validated against the broker ACL
//   - Payloads contain SQL command counts and error messages, never data
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().MigrationReport(), report)
package mqtt
