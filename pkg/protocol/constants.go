package protocol

// Directory and file names used throughout gitclauder.
const (
	// HomeDir is the user-level state directory (e.g., ~/.gitclauder).
	HomeDir = ".gitclauder"

	// ArchiveDir holds the tier files and the memory state file.
	ArchiveDir = "archive"

	// StateFile persists the priority level for the next task.
	StateFile = "memory-state.json"

	// QueueDB is the SQLite task queue and event log.
	QueueDB = "queue.db"

	// ConfigYAML and ConfigTOML are the accepted config file names.
	ConfigYAML = "config.yaml"
	ConfigTOML = "config.toml"
)

// Limits shared by the runner and the queue adapters.
const (
	// TierThreshold is the byte bound for tiers 1 and 2 (30 KiB).
	TierThreshold = 30 * 1024

	// MaxResultLength is the queue's per-cell result cap, in characters.
	MaxResultLength = 50000

	// TruncationMarker is appended to results cut at MaxResultLength.
	TruncationMarker = "\n\n... (result truncated: exceeded the queue's length limit)"

	// DefaultTimeoutSeconds bounds one agent invocation when no control row
	// supplies a timeout.
	DefaultTimeoutSeconds = 600

	// DefaultIntervalSeconds is the polling hint written into a fresh control row.
	DefaultIntervalSeconds = 300

	// DefaultControlTimeoutSeconds is the timeout written into a fresh control row.
	DefaultControlTimeoutSeconds = 300
)
