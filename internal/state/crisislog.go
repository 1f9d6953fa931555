// internal/state/crisislog.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/haven/internal/types"
)

// CrisisLog is a JSONL-backed append-only store for crisis events at
// crises/events.jsonl. Events are never rewritten or deleted; they outlive
// user-data deletion under the audit retention policy. Follow-up dispatch
// state lives in a separate side file so the event log itself stays
// append-only.
type CrisisLog struct {
	root string
	mu   sync.Mutex
}

// NewCrisisLog creates a file-backed CrisisLog rooted at the given
// directory.
func NewCrisisLog(root string) *CrisisLog {
	return &CrisisLog{root: root}
}

func (c *CrisisLog) eventsPath() string {
	return filepath.Join(c.root, "crises", "events.jsonl")
}

func (c *CrisisLog) dispatchedPath() string {
	return filepath.Join(c.root, "crises", "dispatched.json")
}

// Append adds an event to the log.
func (c *CrisisLog) Append(_ context.Context, event *types.CrisisEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.eventsPath()), 0o755); err != nil {
		return fmt.Errorf("create crises dir: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal crisis event: %w", err)
	}

	f, err := os.OpenFile(c.eventsPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open crisis log: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write crisis event: %w", err)
	}
	return nil
}

// load reads every event. Caller must hold the lock.
func (c *CrisisLog) load() ([]*types.CrisisEvent, error) {
	f, err := os.Open(c.eventsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open crisis log: %w", err)
	}
	defer f.Close()

	var events []*types.CrisisEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var event types.CrisisEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, fmt.Errorf("unmarshal crisis event: %w", err)
		}
		events = append(events, &event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan crisis log: %w", err)
	}
	return events, nil
}

// loadDispatched reads the side file of dispatched follow-up labels keyed
// by event id. Caller must hold the lock.
func (c *CrisisLog) loadDispatched() (map[types.CrisisEventID][]string, error) {
	data, err := os.ReadFile(c.dispatchedPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[types.CrisisEventID][]string), nil
		}
		return nil, fmt.Errorf("read dispatched index: %w", err)
	}
	out := make(map[types.CrisisEventID][]string)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal dispatched index: %w", err)
	}
	return out, nil
}

// ListByUser returns every crisis event recorded for the user, in append
// order.
func (c *CrisisLog) ListByUser(_ context.Context, userID types.UserID) ([]*types.CrisisEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	events, err := c.load()
	if err != nil {
		return nil, err
	}
	var out []*types.CrisisEvent
	for _, event := range events {
		if event.UserID == userID {
			out = append(out, event)
		}
	}
	return out, nil
}

// ListDue returns every follow-up due at or before now that has not been
// marked dispatched.
func (c *CrisisLog) ListDue(_ context.Context, now time.Time) ([]types.DueFollowUp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	events, err := c.load()
	if err != nil {
		return nil, err
	}
	dispatched, err := c.loadDispatched()
	if err != nil {
		return nil, err
	}

	var out []types.DueFollowUp
	for _, event := range events {
		done := dispatched[event.ID]
		for _, fu := range event.FollowUps {
			if fu.Due.After(now) || contains(done, fu.Label) {
				continue
			}
			out = append(out, types.DueFollowUp{Event: event, FollowUp: fu})
		}
	}
	return out, nil
}

// MarkDispatched records that the labeled follow-up of an event has been
// handed to the notifier. The event log itself is untouched.
func (c *CrisisLog) MarkDispatched(_ context.Context, id types.CrisisEventID, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dispatched, err := c.loadDispatched()
	if err != nil {
		return err
	}
	if contains(dispatched[id], label) {
		return nil
	}
	dispatched[id] = append(dispatched[id], label)

	data, err := json.MarshalIndent(dispatched, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dispatched index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.dispatchedPath()), 0o755); err != nil {
		return fmt.Errorf("create crises dir: %w", err)
	}
	tmp := c.dispatchedPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write dispatched index: %w", err)
	}
	if err := os.Rename(tmp, c.dispatchedPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename dispatched index: %w", err)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
