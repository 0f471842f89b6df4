// Package ws serves the operator interface over WebSocket.
//
// The package implements:
//   - Hub: tracks attached operator clients and fans out broadcasts
//   - Presenter: renders controller signals as messages and collects
//     confirmation answers
//   - Handler: upgrades connections and routes operator intents
//   - Service: wires the three together
//
// Every client sees the same screen. A newly attached client first receives a
// "state" message with the full controller snapshot and the recent activity
// log, then incremental messages as the controller changes.
package ws
