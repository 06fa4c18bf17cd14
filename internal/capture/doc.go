// Package capture drives the audio capture and downlink pipeline.
//
// A Manager owns the capture session and the transmission state. It is
// driven from a single goroutine: the scheduler calls Tick once per cycle and
// executes commands between ticks. On each tick while capturing it reads one
// block from the device, reports the RMS level and frame counters as
// telemetry, and when transmission is enabled frames the block into a
// sequenced packet for the outbound sink.
//
// Commands:
//
//	START_CAPTURE       open the first available candidate device
//	STOP_CAPTURE        close the device
//	START_TRANSMISSION  begin framing captured blocks
//	STOP_TRANSMISSION   stop framing captured blocks
//	SEND_TEST_PACKET    frame and send a synthetic 440 Hz tone
package capture
