// Package harness prepares a Kamailio test run from
// TestMain: it loads the configuration once, optionally
// builds the SIPp image, gathers the environment status,
// forwards the Kamailio service when the cluster is not
// Kind and resolves the target. Tests then use the skip
// helpers, so a missing environment skips and only
// genuine scenario failures fail.
package harness
