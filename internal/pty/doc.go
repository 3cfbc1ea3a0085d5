// Package pty hosts many pseudo-terminal backed shell sessions inside one
// process. A Manager spawns shells attached to ptys, relays their output to
// a Sink, accepts writes and resizes, and tears every session down on close
// or host shutdown.
package pty
