package config

// Key identifies a configuration value.
type Key string

// Keys consumed by the network bootstrap core.
const (
	// KeyWifiESSID is the network name for client mode.
	KeyWifiESSID Key = "wifiEssid"

	// KeyWifiPassword is the network password for client mode.
	KeyWifiPassword Key = "wifiPassword"

	// KeyWifiConfigured is "true" (case-insensitive) once credentials have
	// been submitted. Anything else keeps the device in setup mode.
	KeyWifiConfigured Key = "wifiConfigured"

	// KeyAccessPointSecret protects the setup access point.
	KeyAccessPointSecret Key = "accessPointSecret"

	// KeyDeviceName is the user-visible device name, also the hostname
	// source.
	KeyDeviceName Key = "deviceName"
)

// Keys consumed by collaborators.
const (
	KeyMQTTActive        Key = "mqttActive"
	KeyMQTTHost          Key = "mqttHost"
	KeyMQTTUser          Key = "mqttUser"
	KeyMQTTPassword      Key = "mqttPass"
	KeyOTAActive         Key = "otaActive"
	KeyOTAPassword       Key = "otaPass"
	KeyHADiscoveryPrefix Key = "haDiscoveryPrefix"
)

// ValueTrue is the canonical affirmative value for flag-like keys.
const ValueTrue = "true"
