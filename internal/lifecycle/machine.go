package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/modforge/moduled/internal/state"
)

// Store is the persistence port the machine writes through.
// *state.Store satisfies it.
type Store interface {
	GetModuleStatus(ctx context.Context, moduleID string) (state.ModuleStatus, bool, error)
	UpsertModuleStatus(ctx context.Context, status state.ModuleStatus) error
	GetWorkflowCompletion(ctx context.Context, moduleID, workflow string) (state.WorkflowCompletion, bool, error)
	UpsertWorkflowCompletion(ctx context.Context, moduleID, workflow string, completed bool) error
}

// InvalidTransitionError reports a stage promotion that violates the
// forward-only ordering. It is recoverable: the caller may retry with the
// legal successor or surface the message to the user. Storage failures are
// never reported through this type.
type InvalidTransitionError struct {
	ModuleID  string
	Current   Stage
	Requested Stage
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("module %s: invalid stage transition %s -> %s", e.ModuleID, e.Current, e.Requested)
}

// IsInvalidTransition reports whether err is a stage-rule violation.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

type Status struct {
	ModuleID  string    `json:"module_id"`
	Stage     Stage     `json:"stage"`
	Busy      BusyState `json:"busy_state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Machine tracks per-module lifecycle stage and busy state through the Store.
// A module it has never seen starts at (INITIALIZE, STANDBY).
type Machine struct {
	store Store

	mu sync.Mutex
	// locks holds one dispatch mutex per module id, retained for the process
	// lifetime. Entries are never evicted: a lock must outlive any dispatch
	// that might still hold it, and the set of module ids is small.
	locks map[string]*sync.Mutex
}

func NewMachine(store Store) *Machine {
	return &Machine{store: store, locks: map[string]*sync.Mutex{}}
}

// Lock acquires the per-module dispatch lock and returns the release func.
// At most one dispatch may run against a module at a time.
func (m *Machine) Lock(moduleID string) func() {
	m.mu.Lock()
	lock, ok := m.locks[moduleID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[moduleID] = lock
	}
	m.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (m *Machine) GetStatus(ctx context.Context, moduleID string) (Status, error) {
	row, found, err := m.store.GetModuleStatus(ctx, moduleID)
	if err != nil {
		return Status{}, fmt.Errorf("load module status: %w", err)
	}
	if !found {
		fresh := state.ModuleStatus{
			ModuleID:  moduleID,
			Stage:     string(StageInitialize),
			BusyState: string(BusyStandby),
		}
		if err := m.store.UpsertModuleStatus(ctx, fresh); err != nil {
			return Status{}, fmt.Errorf("initialize module status: %w", err)
		}
		return Status{ModuleID: moduleID, Stage: StageInitialize, Busy: BusyStandby, UpdatedAt: time.Now().UTC()}, nil
	}
	return statusFromRow(row), nil
}

func (m *Machine) Promote(ctx context.Context, moduleID string, target Stage) error {
	if !target.Valid() {
		return &InvalidTransitionError{ModuleID: moduleID, Current: "", Requested: target}
	}
	current, err := m.GetStatus(ctx, moduleID)
	if err != nil {
		return err
	}
	successor, ok := current.Stage.Successor()
	if !ok || successor != target {
		return &InvalidTransitionError{ModuleID: moduleID, Current: current.Stage, Requested: target}
	}
	row := state.ModuleStatus{
		ModuleID:  moduleID,
		Stage:     string(target),
		BusyState: string(current.Busy),
	}
	if err := m.store.UpsertModuleStatus(ctx, row); err != nil {
		return fmt.Errorf("store promoted stage: %w", err)
	}
	return nil
}

func (m *Machine) SetBusy(ctx context.Context, moduleID string) error {
	return m.setBusyState(ctx, moduleID, BusyExecuting)
}

func (m *Machine) SetIdle(ctx context.Context, moduleID string) error {
	return m.setBusyState(ctx, moduleID, BusyStandby)
}

func (m *Machine) setBusyState(ctx context.Context, moduleID string, busy BusyState) error {
	current, err := m.GetStatus(ctx, moduleID)
	if err != nil {
		return err
	}
	row := state.ModuleStatus{
		ModuleID:  moduleID,
		Stage:     string(current.Stage),
		BusyState: string(busy),
	}
	if err := m.store.UpsertModuleStatus(ctx, row); err != nil {
		return fmt.Errorf("store busy state: %w", err)
	}
	return nil
}

func (m *Machine) MarkWorkflowComplete(ctx context.Context, moduleID, workflow string) error {
	workflow = strings.TrimSpace(workflow)
	if workflow == "" {
		return fmt.Errorf("workflow is required")
	}
	if err := m.store.UpsertWorkflowCompletion(ctx, moduleID, workflow, true); err != nil {
		return fmt.Errorf("store workflow completion: %w", err)
	}
	return nil
}

func (m *Machine) IsWorkflowComplete(ctx context.Context, moduleID, workflow string) (bool, error) {
	row, found, err := m.store.GetWorkflowCompletion(ctx, moduleID, workflow)
	if err != nil {
		return false, fmt.Errorf("load workflow completion: %w", err)
	}
	if !found {
		return false, nil
	}
	return row.Completed, nil
}

func statusFromRow(row state.ModuleStatus) Status {
	status := Status{
		ModuleID:  row.ModuleID,
		Stage:     Stage(row.Stage),
		Busy:      BusyState(row.BusyState),
		UpdatedAt: row.UpdatedAt,
	}
	if !status.Stage.Valid() {
		status.Stage = StageInitialize
	}
	if status.Busy != BusyStandby && status.Busy != BusyExecuting {
		status.Busy = BusyStandby
	}
	return status
}
