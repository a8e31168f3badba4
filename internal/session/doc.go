// Package session runs device commands over a link.Link.
//
// A Session owns the link, the connection epoch, the chunk sequence and the
// correlation id source. Every command passes through one Gate, so exactly
// one command is on the link at a time and commands run in submission order.
// Each command runs under the Ladder, which retries failed attempts and
// escalates recovery from reconnecting to full re-pairing.
package session
