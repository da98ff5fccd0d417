// Package resolver decides which host:port the Kamailio tests talk to.
// An explicit host always wins; otherwise a fixed, environment-specific
// chain of cluster queries and reachability probes is walked. Resolution
// never fails outright: when nothing answers, a placeholder Target is
// returned and the connectivity probe that follows reports the failure.
package resolver
