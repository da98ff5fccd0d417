// Package envcheck reports which parts of the test
// environment are in place: the docker and kubectl
// tools, the SIPp image and its scenarios, and the
// Kamailio deployment. Each check is independent and
// verifies its own prerequisites, so a status can be
// gathered on a half-installed machine.
package envcheck
