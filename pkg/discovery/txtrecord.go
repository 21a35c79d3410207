package discovery

import (
	"fmt"
	"net"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeSetupTXT creates TXT records for setup discovery.
func EncodeSetupTXT(info *SetupInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	// Required fields
	txt[TXTKeyMAC] = info.MAC
	txt[TXTKeyAPName] = info.APName

	// Optional fields
	if info.DeviceName != "" {
		txt[TXTKeyDeviceName] = info.DeviceName
	}
	if info.FirmwareVersion != "" {
		txt[TXTKeyFirmware] = info.FirmwareVersion
	}

	return txt
}

// DecodeSetupTXT parses TXT records from setup discovery.
func DecodeSetupTXT(txt TXTRecordMap) (*SetupInfo, error) {
	info := &SetupInfo{}

	// Parse MAC (required)
	mac, ok := txt[TXTKeyMAC]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyMAC)
	}
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid MAC %q", ErrInvalidTXTRecord, mac)
	}
	info.MAC = hw.String()

	// Parse AP name (required)
	info.APName, ok = txt[TXTKeyAPName]
	if !ok || info.APName == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyAPName)
	}

	// Optional fields
	info.DeviceName = txt[TXTKeyDeviceName]
	info.FirmwareVersion = txt[TXTKeyFirmware]

	return info, nil
}

// EncodeOperationalTXT creates TXT records for operational discovery.
func EncodeOperationalTXT(info *OperationalInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	// Required fields
	txt[TXTKeyMAC] = info.MAC
	txt[TXTKeyDeviceName] = info.DeviceName

	// Optional fields
	if info.FirmwareVersion != "" {
		txt[TXTKeyFirmware] = info.FirmwareVersion
	}

	return txt
}

// DecodeOperationalTXT parses TXT records from operational discovery.
func DecodeOperationalTXT(txt TXTRecordMap) (*OperationalInfo, error) {
	info := &OperationalInfo{}

	// Parse MAC (required)
	mac, ok := txt[TXTKeyMAC]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyMAC)
	}
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid MAC %q", ErrInvalidTXTRecord, mac)
	}
	info.MAC = hw.String()

	// Parse device name (required)
	info.DeviceName, ok = txt[TXTKeyDeviceName]
	if !ok || info.DeviceName == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyDeviceName)
	}

	// Optional fields
	info.FirmwareVersion = txt[TXTKeyFirmware]

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value" strings.
// This format is commonly used by mDNS libraries.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
