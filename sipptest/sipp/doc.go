// Package sipp runs SIPp scenarios against a resolved
// Kamailio target and turns each run into a Result.
//
// A run is one container (or, for Kind targets, one
// host process) bounded by a timeout. Statistics are
// scraped from SIPp's summary line on a best-effort
// basis, and failures are classified into a small set
// of transient causes the test harness may skip on.
package sipp
