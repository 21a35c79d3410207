// Package basecamp wires the network bootstrap together.
//
// A Basecamp owns the boot sequence of the device agent: it loads the
// configuration store, runs the boot-resilience check (which may decide
// the device has to restart before any networking starts), provisions the
// setup access point secret, starts the network mode controller, and then
// brings up the collaborators the selected mode needs - the setup web
// interface, captive DNS and mDNS advertising in access point mode; MQTT,
// update polling, time sync and operational advertising once a client
// mode connection is up.
//
// Restart requests from every source (escalation, configuration save,
// installed update) funnel through the orchestrator, which arms the
// restart intent marker and invokes the configured Restarter. The
// resilience tracker itself never restarts anything.
package basecamp
