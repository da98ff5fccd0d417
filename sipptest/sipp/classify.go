package sipp

import "strings"

// TransientCause is a recognised environmental failure
// signature. Unknown failures are genuine defects.
type TransientCause int

const (
	// Unknown is any failure that matched no signature.
	Unknown TransientCause = iota
	// PortInUse means the local SIP port was taken.
	PortInUse
	// ToolMissing means sipp, docker or a shell tool
	// could not be executed.
	ToolMissing
	// Timeout means the run outlived its timeout.
	Timeout
)

// TimeoutMessage is the Result.Error of a timed-out run.
const TimeoutMessage = "Timeout expired"

// signatures are checked in order against the error
// text, then the output.
var signatures = []struct {
	substr string
	cause  TransientCause
}{
	{"Address already in use", PortInUse},
	{"command not found", ToolMissing},
	{"executable file not found", ToolMissing},
	{TimeoutMessage, Timeout},
}

func (c TransientCause) String() string {
	switch c {
	case PortInUse:
		return "port-in-use"
	case ToolMissing:
		return "tool-missing"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Transient reports whether c is a recognised
// environmental cause.
func (c TransientCause) Transient() bool {
	return c != Unknown
}

// Classify returns the transient cause of a failed
// result. Successful results are Unknown.
func Classify(r Result) TransientCause {
	if r.Success {
		return Unknown
	}

	for _, text := range []string{r.Error, r.Output} {
		for _, sig := range signatures {
			if strings.Contains(text, sig.substr) {
				return sig.cause
			}
		}
	}

	return Unknown
}
