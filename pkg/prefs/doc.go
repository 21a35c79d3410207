// Package prefs provides small namespaced preference stores for values that
// must survive restarts, such as the boot counter.
//
// Each namespace is one CBOR file under the store directory. Access is
// scoped: Open returns an exclusive Handle, mutations are buffered, and
// Close flushes them. Update wraps the three steps and guarantees the flush
// on every exit path, which matters when the caller restarts the device
// right after.
//
// The store is deliberately forgiving: a missing namespace file reads as
// empty, and an undecodable one is treated as empty and rewritten on the
// next flush. Devices must never fail to boot because of preference
// storage.
package prefs
