package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrNoAuthority is returned by UnknownAuthority for every lookup.
var ErrNoAuthority = errors.New("no state authority configured")

// UnknownAuthority is the fail-safe authority: every lookup fails, so every
// stale pending intent counts as a discrepancy and promotions stay frozen
// until an operator reconciles with a real authority.
type UnknownAuthority struct{}

var _ StateAuthority = UnknownAuthority{}

// TrueState always fails.
func (UnknownAuthority) TrueState(_ context.Context, intentID string) (TrueState, error) {
	return "", fmt.Errorf("intent %s: %w", intentID, ErrNoAuthority)
}

// FileAuthority answers reconciliation lookups from a JSON document mapping
// intent ids to EXECUTED or FAILED. Intents not present in the file never
// reached the venue and report ABSENT.
type FileAuthority struct {
	mu     sync.Mutex
	path   string
	loaded bool
	states map[string]TrueState
}

var _ StateAuthority = (*FileAuthority)(nil)

// NewFileAuthority creates an authority backed by the given JSON file. The
// file is read lazily on first lookup.
func NewFileAuthority(path string) *FileAuthority {
	return &FileAuthority{path: path}
}

// TrueState reports the recorded outcome for an intent.
func (a *FileAuthority) TrueState(_ context.Context, intentID string) (TrueState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loaded {
		if err := a.load(); err != nil {
			return "", err
		}
	}

	state, ok := a.states[intentID]
	if !ok {
		return TrueStateAbsent, nil
	}
	return state, nil
}

func (a *FileAuthority) load() error {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("read authority file: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse authority file: %w", err)
	}

	a.states = make(map[string]TrueState, len(raw))
	for id, s := range raw {
		switch TrueState(s) {
		case TrueStateExecuted, TrueStateFailed, TrueStateAbsent:
			a.states[id] = TrueState(s)
		default:
			return fmt.Errorf("authority file: intent %s has unknown state %q", id, s)
		}
	}
	a.loaded = true
	return nil
}
