// Package admission validates discovery requests before any snapshot
// work happens for them.
//
// A Gate holds an ordered list of policies built once from
// configuration. Every policy inspects the normalized node metadata of
// one request and either accepts it or produces a Violation naming the
// offending service and the rule it broke. The first violation wins
// and is surfaced to the transport layer unchanged, where it closes
// the stream with an InvalidArgument status.
//
// Policy evaluation is pure: no I/O, no logging, no shared mutable
// state. Configuration changes are applied by building a new Gate and
// swapping it in at the server boundary, never by mutating a live one.
package admission
