// Package audio holds the sample-level helpers shared by the capture path and
// the downlink monitor: RMS level analysis, S16LE byte conversion, tone
// synthesis, WAV encoding and reassembly of sequenced payloads.
package audio
