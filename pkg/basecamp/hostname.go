package basecamp

import "strings"

// DefaultHostname is advertised when no device name has been configured.
const DefaultHostname = "basecamp-device"

// CleanHostname derives a network host name from a free-form device name:
// lowercased, with every byte outside [a-z0-9] replaced by '-'. An empty
// or all-invalid name yields DefaultHostname.
func CleanHostname(deviceName string) string {
	lowered := strings.ToLower(strings.TrimSpace(deviceName))

	var b strings.Builder
	b.Grow(len(lowered))
	for i := 0; i < len(lowered); i++ {
		c := lowered[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		} else {
			b.WriteByte('-')
		}
	}

	cleaned := strings.Trim(b.String(), "-")
	if cleaned == "" {
		return DefaultHostname
	}
	return cleaned
}
