// Package mcp exposes councils to Model Context Protocol clients: tools to
// create, inspect, message and cancel councils, and resources for the active
// list and single snapshots.
package mcp
