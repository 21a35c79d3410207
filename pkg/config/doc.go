// Package config implements the string-keyed device configuration store.
//
// The store is a flat map of string values persisted as one JSON file.
// Consumers treat it as opaque key-value storage; the known keys and their
// meaning are declared in keys.go. A memory-only mode backs tests and
// ephemeral deployments.
//
// Missing keys read as the empty string, and a missing file loads as an
// empty store: the boot path must tolerate a blank device.
package config
