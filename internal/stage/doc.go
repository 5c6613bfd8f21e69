// Package stage names the fixed pipeline stages and their order, and carries the
// Health record gateways report to the daemon.
package stage
