// Package probe answers one question about a host:port pair: is it
// reachable over UDP or TCP. Tool missing, non-zero exit and timeout
// are deliberately indistinguishable; all of them mean "not reachable".
package probe
