// Package protocol decodes airOS discovery broadcast datagrams. A datagram
// is a 6-byte header followed by TLV fields; Decode turns one into a
// DiscoveryPacket or a typed error, with no I/O and no state between calls.
package protocol
