// Package docker wraps the docker CLI calls used to
// build the SIPp image and run commands inside it.
package docker
