package transfer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// persist writes the session state when a snapshot path is configured.
// Callers hold s.mu.
func (s *Session) persist() error {
	if s.snapshotPath == "" {
		return nil
	}

	p, err := json.MarshalIndent(&s.st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(s.snapshotPath), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	if err = renameio.WriteFile(s.snapshotPath, p, 0o644); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Restore resumes the session saved at the snapshot path. It reports false
// when there is nothing to resume: no snapshot, or one of a finished run.
func (s *Session) Restore() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateIdle); err != nil {
		return false, err
	}
	if s.snapshotPath == "" {
		return false, nil
	}

	p, err := os.ReadFile(s.snapshotPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading session: %w", err)
	}

	var st sessionState
	if err = json.Unmarshal(p, &st); err != nil {
		return false, fmt.Errorf("decoding session %s: %w", s.snapshotPath, err)
	}

	switch st.State {
	case StateWiped, StateAborted, StateIdle:
		return false, nil
	case StatePrepared, StateEditing, StateAwaitingDecision:
		if st.Batch == nil {
			return false, fmt.Errorf("decoding session %s: %s without a device batch", s.snapshotPath, st.State)
		}
	}

	s.st = st
	s.logger.Info("resumed session",
		slog.String("state", string(st.State)),
		slog.Int("devices", len(st.Devices)),
		slog.Int("next", st.Next))
	return true, nil
}
