package diag

// Diagnostic codes for the decompilation core.
//
// Fatal conditions (malformed ingest, cyclic pass dependencies, invariant
// violations) are typed errors in this package instead; codes cover only
// the per-node anomalies that degrade gracefully and ride along with the
// output, because decompilation is inherently heuristic and a partial
// result remains valuable.
type Code string

const (
	// UnresolvedStorage: a read had no reaching definition and was
	// replaced by an undefined-value sentinel.
	UnresolvedStorage Code = "UnresolvedStorage"

	// NonConvergence: the convergent pass loop hit its iteration ceiling
	// before a full sweep reported no change; the best current result is
	// kept.
	NonConvergence Code = "NonConvergence"

	// LowConfidenceCall: a call site stayed on the conservative
	// clobber-everything model because its target is unresolved or the
	// calling convention did not confidently match.
	LowConfidenceCall Code = "LowConfidenceCall"
)

// Describe returns a human-readable description of a diagnostic code.
func Describe(code Code) string {
	switch code {
	case UnresolvedStorage:
		return "storage read has no reaching definition"
	case NonConvergence:
		return "convergent passes hit the iteration ceiling"
	case LowConfidenceCall:
		return "call site kept conservative clobber semantics"
	default:
		return "unknown diagnostic"
	}
}
