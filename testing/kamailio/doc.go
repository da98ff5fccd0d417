// Package kamailio holds the live scenario tests. They
// are built with the integration tag only.
package kamailio
