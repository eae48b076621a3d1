// Package store provides the durable record layer used by the governance
// engine: atomic JSON records under a root directory, exclusive file
// creation, append-only JSONL journals and per-key locks backed by advisory lock
// files, so separate processes over one root exclude each other.
//
// Every record write follows the write-temp-then-rename protocol so that a
// crash or a concurrent reader never observes a half-written file. Journals
// are append-only; a partial trailing line is tolerated by readers.
//
// # Basic Usage
//
//	s, err := store.New("/var/lib/governor")
//	if err != nil {
//	    return err
//	}
//
//	unlock, err := s.Lock("state")
//	if err != nil {
//	    return err
//	}
//	defer unlock()
//
//	var st State
//	if err := s.ReadJSON("state.json", &st); errors.Is(err, store.ErrNotFound) {
//	    // materialize defaults
//	}
//	return s.WriteJSON("state.json", &st)
package store
