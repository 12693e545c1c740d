package eventstream

import (
	"fmt"

	"github.com/marmos91/buildcached/internal/logger"
	"github.com/marmos91/buildcached/pkg/events"
)

// validateEvent checks an event's structural well-formedness: an event of
// any kind with an empty hash, or with a kind other than Add, Touch or
// Delete, decodes without error but would otherwise silently corrupt a
// peer's view of CAS state.
func validateEvent(ev events.Event) error {
	if ev.Hash == "" {
		return fmt.Errorf("eventstream: event missing content hash")
	}
	if ev.Kind != events.Add && ev.Kind != events.Touch && ev.Kind != events.Delete {
		return fmt.Errorf("eventstream: event has unrecognized kind %d", ev.Kind)
	}
	return nil
}

// applyValidation runs validateEvent over evs according to mode, returning
// the events that should still be processed and how many were dropped.
// ValidationOff always returns evs unfiltered; ValidationTrace logs each
// violation but keeps the event; ValidationFail drops violating events.
func applyValidation(site string, mode ValidationMode, evs []events.Event) (kept []events.Event, dropped int) {
	if mode == ValidationOff {
		return evs, 0
	}

	kept = make([]events.Event, 0, len(evs))
	for _, ev := range evs {
		if err := validateEvent(ev); err != nil {
			if mode == ValidationTrace {
				logger.Warn("event validation discrepancy", "site", site, "error", err, "hash", ev.Hash)
				kept = append(kept, ev)
				continue
			}
			dropped++
			continue
		}
		kept = append(kept, ev)
	}
	return kept, dropped
}
