package lifecycle

// Stage is the coarse lifecycle phase of a module. Stages only move forward:
// INITIALIZE -> MAINTAIN -> REMOVE.
type Stage string

const (
	StageInitialize Stage = "INITIALIZE"
	StageMaintain   Stage = "MAINTAIN"
	StageRemove     Stage = "REMOVE"
)

// BusyState is the fine-grained dispatch flag of a module.
type BusyState string

const (
	BusyStandby   BusyState = "STANDBY"
	BusyExecuting BusyState = "EXECUTING"
)

// Successor returns the single legal next stage, if any.
func (s Stage) Successor() (Stage, bool) {
	switch s {
	case StageInitialize:
		return StageMaintain, true
	case StageMaintain:
		return StageRemove, true
	default:
		return "", false
	}
}

func (s Stage) Valid() bool {
	switch s {
	case StageInitialize, StageMaintain, StageRemove:
		return true
	}
	return false
}
