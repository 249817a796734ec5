// Package model defines the protocol messages, the response ledger and the
// domain entities (UAVs, drivers, clocks, connections, clients) shared by the
// core packages.
package model
