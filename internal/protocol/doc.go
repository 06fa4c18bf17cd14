// Package protocol implements the framed audio packet format: a 12-byte header
// carrying sequence, timestamp and payload length followed by S16LE samples.
// It provides the sequencing framer used on the transmit side, header and
// packet parsing, and a stream receiver that validates sequencing on the
// downlink side.
package protocol
