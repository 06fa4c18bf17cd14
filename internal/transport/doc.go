// Package transport carries framed audio packets off the host.
//
// The capture manager hands every framed packet to a PacketSink. The UDP
// implementation writes one datagram per packet to a fixed destination;
// Discard drops packets and is used when no downlink is configured.
package transport
