// Package local provides in-process implementations of the council adapters:
// registered Go functions acting as agents, evidence read from memory or a
// directory, and a rule-based synthesizer. They back `council serve --local`
// and the end-to-end tests.
package local
