package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = LatticeSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// LatticeSemVer is the semantic version of the node software.
	LatticeSemVer = "0.1.0"
)

// Protocol is used for implementation agnostic versioning.
type Protocol uint64

var (
	// VoteProtocol versions the signed vote payload. It changes together
	// with the algorithm tag inside it.
	VoteProtocol Protocol = 1

	// LedgerProtocol versions block layouts and the ledger rules applied to
	// them.
	LedgerProtocol Protocol = 1
)
