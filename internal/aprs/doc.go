// Package aprs implements the telemetry ingestion service.
//
// Ground stations push single-line key/value reports over TCP:
//
//	APRS_TLM LAT=42.123456 LON=-71.123456 BAT=12.6 TEMP=22.1 CALL=AMSAT-11
//
// The listener is non-blocking and polled once per scheduler tick. Each
// tick accepts at most one connection, performs one read, closes the
// connection, and republishes recognised fields as telemetry and events.
// There is no authentication on this path.
package aprs
