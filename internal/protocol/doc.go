// Package protocol owns the Knox Chameleon64i wire contract.
//
// Ownership boundary:
// - command encoding and argument validation
// - response framing (DONE/ERROR terminator lines)
// - crosspoint and VTB text scraping
//
// The package performs no I/O; the fragile text matching lives here so it is
// unit-testable in isolation from sockets.
package protocol
