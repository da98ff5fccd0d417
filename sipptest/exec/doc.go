// Package exec runs external tools (kubectl, docker, nc, sipp) as
// bounded subprocesses and captures their outcome. A Runner never
// returns an error: tool-not-found, non-zero exit and timeout are all
// reported inside Output so callers can collapse them to a boolean.
package exec
