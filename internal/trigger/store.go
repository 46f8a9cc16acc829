// Package trigger provides persistence of trigger definitions and the pure
// rule-evaluation primitives (filter matching, prompt interpolation) the
// dispatcher is built on.
package trigger

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hookrelay/hookrelay/internal/errors"
	"github.com/hookrelay/hookrelay/pkg/types"
)

// triggersFileName is the per-agent collection file.
const triggersFileName = "triggers.json"

// ErrNotFound signals that no trigger with the requested id exists for the
// agent.
var ErrNotFound = errors.NewTriggerError(errors.CodeTriggerNotFound, "trigger not found")

// Store persists trigger definitions, one JSON collection per agent alias.
// Every mutation rewrites the agent's whole collection via a temp file and
// atomic rename, so a crash never leaves a partially written collection.
type Store struct {
	dir string
	mu  sync.Mutex // serializes read-modify-write cycles
}

// NewStore creates a trigger store rooted at dir (the agents directory).
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// List returns all triggers of an agent. Missing or corrupt storage yields
// an empty collection, never an error.
func (s *Store) List(agentAlias string) []types.Trigger {
	return s.load(agentAlias)
}

// Get returns one trigger by id, or ErrNotFound.
func (s *Store) Get(agentAlias, id string) (*types.Trigger, error) {
	for _, t := range s.load(agentAlias) {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

// Create assigns a fresh unique id and persists the updated collection.
func (s *Store) Create(agentAlias string, t types.Trigger) (*types.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = uuid.New().String()
	if t.Status == "" {
		t.Status = types.TriggerActive
	}

	triggers := append(s.load(agentAlias), t)
	if err := s.persist(agentAlias, triggers); err != nil {
		return nil, err
	}
	return &t, nil
}

// Patch holds the mutable trigger fields for Update. Nil fields are left
// unchanged; the id itself is never overwritable.
type Patch struct {
	Name          *string              `json:"name,omitempty"`
	Status        *types.TriggerStatus `json:"status,omitempty"`
	Filter        *types.TriggerFilter `json:"filter,omitempty"`
	Action        *types.TriggerAction `json:"action,omitempty"`
	LastTriggered *int64               `json:"lastTriggered,omitempty"`
	TriggerCount  *int64               `json:"triggerCount,omitempty"`
}

// Update shallowly merges the patch onto the stored trigger and persists the
// collection. Returns ErrNotFound if the id does not exist.
func (s *Store) Update(agentAlias, id string, patch Patch) (*types.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	triggers := s.load(agentAlias)
	for i := range triggers {
		if triggers[i].ID != id {
			continue
		}

		if patch.Name != nil {
			triggers[i].Name = *patch.Name
		}
		if patch.Status != nil {
			triggers[i].Status = *patch.Status
		}
		if patch.Filter != nil {
			triggers[i].Filter = *patch.Filter
		}
		if patch.Action != nil {
			triggers[i].Action = *patch.Action
		}
		if patch.LastTriggered != nil {
			triggers[i].LastTriggered = patch.LastTriggered
		}
		if patch.TriggerCount != nil {
			triggers[i].TriggerCount = *patch.TriggerCount
		}

		if err := s.persist(agentAlias, triggers); err != nil {
			return nil, err
		}
		updated := triggers[i]
		return &updated, nil
	}
	return nil, ErrNotFound
}

// RecordFired bumps a trigger's stats after a successful match: increments
// the trigger count and stamps LastTriggered.
func (s *Store) RecordFired(agentAlias, id string, firedAtMs int64) (*types.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	triggers := s.load(agentAlias)
	for i := range triggers {
		if triggers[i].ID != id {
			continue
		}
		triggers[i].TriggerCount++
		triggers[i].LastTriggered = &firedAtMs
		if err := s.persist(agentAlias, triggers); err != nil {
			return nil, err
		}
		updated := triggers[i]
		return &updated, nil
	}
	return nil, ErrNotFound
}

// Delete removes a trigger. Returns false if the id does not exist; the
// collection is left unchanged in that case.
func (s *Store) Delete(agentAlias, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	triggers := s.load(agentAlias)
	for i := range triggers {
		if triggers[i].ID != id {
			continue
		}
		remaining := append(triggers[:i:i], triggers[i+1:]...)
		if err := s.persist(agentAlias, remaining); err != nil {
			log.Printf("trigger: failed to persist after delete for agent %s: %v", agentAlias, err)
			return false
		}
		return true
	}
	return false
}

// Agents returns every agent alias with a trigger collection on disk,
// alphabetically ordered.
func (s *Store) Agents() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	var aliases []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dir, entry.Name(), triggersFileName)); err != nil {
			continue
		}
		aliases = append(aliases, entry.Name())
	}
	sort.Strings(aliases)
	return aliases
}

// load reads an agent's collection. Corrupt storage must not throw: parse
// failures log and yield an empty collection.
func (s *Store) load(agentAlias string) []types.Trigger {
	data, err := os.ReadFile(filepath.Join(s.dir, agentAlias, triggersFileName))
	if err != nil {
		return nil
	}

	var triggers []types.Trigger
	if err := json.Unmarshal(data, &triggers); err != nil {
		log.Printf("trigger: corrupt collection for agent %s, treating as empty: %v", agentAlias, err)
		return nil
	}
	return triggers
}

// persist writes the full collection as one unit: temp file then rename.
func (s *Store) persist(agentAlias string, triggers []types.Trigger) error {
	agentDir := filepath.Join(s.dir, agentAlias)
	if err := os.MkdirAll(agentDir, 0755); err != nil {
		return errors.NewStorageError(errors.CodePersistFailed, "failed to create agent directory", err)
	}

	if triggers == nil {
		triggers = []types.Trigger{}
	}
	data, err := json.MarshalIndent(triggers, "", "  ")
	if err != nil {
		return errors.NewStorageError(errors.CodePersistFailed, "failed to serialize triggers", err)
	}

	tmp, err := os.CreateTemp(agentDir, triggersFileName+".tmp-*")
	if err != nil {
		return errors.NewStorageError(errors.CodePersistFailed, "failed to create temp file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewStorageError(errors.CodePersistFailed, "failed to write triggers", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewStorageError(errors.CodePersistFailed, "failed to close temp file", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(agentDir, triggersFileName)); err != nil {
		os.Remove(tmpPath)
		return errors.NewStorageError(errors.CodePersistFailed, "failed to replace triggers file", err)
	}
	return nil
}
