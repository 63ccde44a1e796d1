package recordstore

import (
	"context"
	"fmt"
)

// ClaimSpec parameterizes an optimistic read-verify-write claim over one
// record. The store has no compare-and-swap, so the claim is a convention:
// read, check eligibility, patch the target status plus a caller-unique token,
// then re-read and confirm the token survived. A racing claimer that patched
// in between overwrites the token and is detected on the re-read.
type ClaimSpec struct {
	StatusField string
	To          string
	TokenField  string
	Token       string
	// Eligible decides from the freshly-read record whether this claimer may
	// proceed. Returning false is the normal lost-the-race outcome.
	Eligible func(Record) bool
	// Extra fields written together with the status and token.
	Extra map[string]any
}

// Claim runs the read-verify-write protocol. It returns the claimed record and
// true on a confirmed claim, or false (with no error) when the record was not
// eligible or another claimer won the race. Store errors propagate.
//
// A window remains between the read and the patch in which two claimers can
// both observe an eligible record; the token re-read narrows it to at most one
// confirmed winner, at the cost of occasionally confirming neither.
func Claim(ctx context.Context, s Store, table, id string, spec ClaimSpec) (Record, bool, error) {
	rec, err := s.Get(ctx, table, id)
	if err != nil {
		return Record{}, false, fmt.Errorf("claim read: %w", err)
	}
	if spec.Eligible != nil && !spec.Eligible(rec) {
		return Record{}, false, nil
	}

	fields := map[string]any{
		spec.StatusField: spec.To,
		spec.TokenField:  spec.Token,
	}
	for k, v := range spec.Extra {
		fields[k] = v
	}
	if _, err := s.Patch(ctx, table, id, fields); err != nil {
		return Record{}, false, fmt.Errorf("claim write: %w", err)
	}

	confirmed, err := s.Get(ctx, table, id)
	if err != nil {
		return Record{}, false, fmt.Errorf("claim verify: %w", err)
	}
	if confirmed.Fields[spec.StatusField] != spec.To || confirmed.Fields[spec.TokenField] != spec.Token {
		return Record{}, false, nil
	}
	return confirmed, true, nil
}
