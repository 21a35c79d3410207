package netcontrol

import (
	"fmt"
	"net"
	"strings"
)

// Format6Bytes renders exactly six bytes as two-digit lowercase hex groups
// joined by delimiter. An empty delimiter yields no separator.
func Format6Bytes(b [6]byte, delimiter string) string {
	var out strings.Builder
	out.Grow(12 + 5*len(delimiter))

	for i, v := range b {
		if i != 0 && delimiter != "" {
			out.WriteString(delimiter)
		}
		fmt.Fprintf(&out, "%02x", v)
	}
	return out.String()
}

// formatHardwareAddr formats the first six bytes of addr, zero-padding
// shorter addresses. Link-layer addresses on the supported platforms are
// EUI-48.
func formatHardwareAddr(addr net.HardwareAddr, delimiter string) string {
	var b [6]byte
	copy(b[:], addr)
	return Format6Bytes(b, delimiter)
}
