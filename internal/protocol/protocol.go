package protocol

import (
	"encoding/binary"
	"fmt"
	"net"
	"unicode/utf8"
)

// Wire format constants for the airOS discovery broadcast
const (
	// Header layout: [ProtocolID:1][VersionID:1][Reserved:4]
	HeaderSize = 6

	// Header identifiers observed on current firmware. Devices with newer
	// firmware may send different values; the decoder never rejects on them.
	ProtocolIDDiscovery = 0x01
	VersionIDDiscovery  = 0x06

	// Field types
	FieldMACIPAddress  = 0x02 // 6-byte MAC + 4-byte IPv4, length-prefixed
	FieldFirmware      = 0x03 // ASCII firmware version string
	FieldMACAddress    = 0x06 // fixed 6-byte MAC, no length prefix
	FieldUptime        = 0x0A // big-endian uint32 seconds
	FieldHostname      = 0x0B // UTF-8 hostname
	FieldModel         = 0x0C // UTF-8 short model name
	FieldSSID          = 0x0D // UTF-8 SSID
	FieldFullModelName = 0x14 // UTF-8 full model name

	// Fixed value sizes
	MACSize           = 6
	CombinedValueSize = 10 // 6-byte MAC + 4-byte IPv4
	UptimeValueSize   = 4
	lengthPrefixSize  = 2
)

// DiscoveryPacket is one decoded discovery broadcast. Variable-length
// string fields use pointers so "present but empty" (zero-length TLV)
// stays distinct from "field absent". MACAddress and IPAddress are plain
// strings because their TLVs carry fixed-size values and can never be
// legitimately empty; the empty string means absent.
type DiscoveryPacket struct {
	ProtocolID uint8
	VersionID  uint8

	MACAddress      string // canonical colon-hex, e.g. "01:23:45:67:89:CD"
	IPAddress       string // dotted-quad, set only by the combined 0x02 field
	FirmwareVersion *string
	UptimeSeconds   *uint32
	Hostname        *string
	Model           *string
	SSID            *string
	FullModelName   *string

	// RawFields holds unrecognized TLV types verbatim, keyed by type byte.
	RawFields map[byte][]byte
}

// Decode parses one discovery datagram into a DiscoveryPacket. It is pure
// and stateless; every byte after the 6-byte header must belong to a
// complete TLV or the whole decode fails. On error the returned packet is
// always nil, never partially populated.
func Decode(raw []byte) (*DiscoveryPacket, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrTruncatedHeader, len(raw), HeaderSize)
	}

	pkt := &DiscoveryPacket{
		ProtocolID: raw[0],
		VersionID:  raw[1],
	}

	offset := HeaderSize
	for offset < len(raw) {
		fieldType := raw[offset]
		fieldStart := offset
		offset++

		// Type 0x06 carries a bare 6-byte MAC with no length prefix.
		if fieldType == FieldMACAddress {
			if len(raw)-offset < MACSize {
				return nil, fmt.Errorf("%w: field 0x%02x at offset %d: need %d value bytes, %d remain",
					ErrTruncatedField, fieldType, fieldStart, MACSize, len(raw)-offset)
			}
			pkt.MACAddress = formatMAC(raw[offset : offset+MACSize])
			offset += MACSize
			continue
		}

		if len(raw)-offset < lengthPrefixSize {
			return nil, fmt.Errorf("%w: field 0x%02x at offset %d: incomplete length prefix",
				ErrTrailingBytes, fieldType, fieldStart)
		}
		valueLen := int(binary.BigEndian.Uint16(raw[offset : offset+lengthPrefixSize]))
		offset += lengthPrefixSize

		if len(raw)-offset < valueLen {
			return nil, fmt.Errorf("%w: field 0x%02x at offset %d: declared %d value bytes, %d remain",
				ErrTruncatedField, fieldType, fieldStart, valueLen, len(raw)-offset)
		}
		value := raw[offset : offset+valueLen]
		offset += valueLen

		if err := pkt.setField(fieldType, value); err != nil {
			return nil, err
		}
	}

	return pkt, nil
}

// setField dispatches one TLV value onto the packet. Duplicate types are
// last-wins, matching observed device behavior; that includes the MAC
// address when both 0x06 and 0x02 appear.
func (p *DiscoveryPacket) setField(fieldType byte, value []byte) error {
	switch fieldType {
	case FieldMACIPAddress:
		if len(value) != CombinedValueSize {
			return fmt.Errorf("%w: got %d value bytes, need %d", ErrMalformedCombinedField, len(value), CombinedValueSize)
		}
		p.MACAddress = formatMAC(value[:MACSize])
		p.IPAddress = net.IP(value[MACSize:]).String()

	case FieldFirmware:
		s, err := decodeASCII(fieldType, value)
		if err != nil {
			return err
		}
		p.FirmwareVersion = &s

	case FieldUptime:
		if len(value) != UptimeValueSize {
			return fmt.Errorf("%w: field 0x%02x: got %d value bytes, need %d",
				ErrTruncatedField, fieldType, len(value), UptimeValueSize)
		}
		uptime := binary.BigEndian.Uint32(value)
		p.UptimeSeconds = &uptime

	case FieldHostname:
		s, err := decodeUTF8(fieldType, value)
		if err != nil {
			return err
		}
		p.Hostname = &s

	case FieldModel:
		s, err := decodeUTF8(fieldType, value)
		if err != nil {
			return err
		}
		p.Model = &s

	case FieldSSID:
		s, err := decodeUTF8(fieldType, value)
		if err != nil {
			return err
		}
		p.SSID = &s

	case FieldFullModelName:
		s, err := decodeUTF8(fieldType, value)
		if err != nil {
			return err
		}
		p.FullModelName = &s

	default:
		if p.RawFields == nil {
			p.RawFields = make(map[byte][]byte)
		}
		v := make([]byte, len(value))
		copy(v, value)
		p.RawFields[fieldType] = v
	}

	return nil
}

// KnownHeader reports whether the header identifiers match the values
// observed on current firmware. A mismatch is informational only.
func (p *DiscoveryPacket) KnownHeader() bool {
	return p.ProtocolID == ProtocolIDDiscovery && p.VersionID == VersionIDDiscovery
}

// decodeUTF8 validates a string field as UTF-8. Garbage bytes fail the
// whole decode rather than being silently replaced, so callers can tell
// a corrupt field apart from an empty one.
func decodeUTF8(fieldType byte, value []byte) (string, error) {
	if !utf8.Valid(value) {
		return "", fmt.Errorf("%w: field 0x%02x: invalid UTF-8", ErrFieldEncoding, fieldType)
	}
	return string(value), nil
}

// decodeASCII validates a string field as 7-bit ASCII.
func decodeASCII(fieldType byte, value []byte) (string, error) {
	for _, b := range value {
		if b >= 0x80 {
			return "", fmt.Errorf("%w: field 0x%02x: byte 0x%02x is not ASCII", ErrFieldEncoding, fieldType, b)
		}
	}
	return string(value), nil
}

// formatMAC renders a 6-byte hardware address in canonical colon-hex form.
func formatMAC(b []byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}

// String returns a human-readable summary of the packet.
func (p *DiscoveryPacket) String() string {
	return fmt.Sprintf("DiscoveryPacket{MAC:%s, IP:%s, Hostname:%s, Model:%s, Firmware:%s}",
		orAbsent(p.MACAddress), orAbsent(p.IPAddress),
		derefOrAbsent(p.Hostname), derefOrAbsent(p.Model), derefOrAbsent(p.FirmwareVersion))
}

func orAbsent(s string) string {
	if s == "" {
		return "<absent>"
	}
	return s
}

func derefOrAbsent(s *string) string {
	if s == nil {
		return "<absent>"
	}
	return fmt.Sprintf("%q", *s)
}
