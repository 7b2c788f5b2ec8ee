package core

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCrashed   RunStatus = "crashed"
	RunStopped   RunStatus = "stopped"
)

// IsTerminal reports whether no further transitions are possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunCrashed || s == RunStopped
}

// RunState is the scheduler's private view of a run. Only the scheduler
// goroutine reads or writes it.
type RunState struct {
	BaselineSwapBytes uint64
	// PhaseIndex is -1 until the first phase is entered.
	PhaseIndex     int
	Processed      int
	OffloadEnabled bool
	Status         RunStatus
	LoadedModel    string
}

// NewRunState returns an idle state with the offload flag fixed.
func NewRunState(offloadEnabled bool) RunState {
	return RunState{
		PhaseIndex:     -1,
		OffloadEnabled: offloadEnabled,
		Status:         RunIdle,
	}
}

// Progress returns processed documents as a percentage of total.
func (s RunState) Progress(total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(s.Processed) / float64(total) * 100
}

// CrashRecord describes the simulated out-of-memory termination.
type CrashRecord struct {
	Reason                string
	Processed             int
	Total                 int
	RequiredCapacityBytes uint64
	SwapDeltaBytes        int64
	Snapshot              TelemetrySample
}

// CrashReasonUnifiedMemory is the reason reported when swap growth exceeds
// the configured threshold without offload.
const CrashReasonUnifiedMemory = "Out of unified memory - memory offload required for this workload"
