package hub

import (
	"errors"
	"fmt"

	"github.com/khanglvm/skill-hub/internal/outputs"
	"github.com/khanglvm/skill-hub/internal/storage"
)

// Status is the outcome of a finalize call.
type Status string

const (
	// StatusFinalized means this call performed the terminal action.
	StatusFinalized Status = "finalized"

	// StatusAlreadyFinalized means the id was not held: it was finalized,
	// evicted or never existed. It is not an error.
	StatusAlreadyFinalized Status = "already_finalized"
)

var errForeignOutput = errors.New("output belongs to another owner")

// FinalizationResult describes one finalize call.
type FinalizationResult struct {
	ID     string         `json:"id"`
	Action storage.Action `json:"action"`
	Status Status         `json:"status"`

	// Output is the finalized output, so download and copy callers get
	// the payload. Nil unless Status is StatusFinalized.
	Output *outputs.Output `json:"output,omitempty"`
}

func finalizeAction(action storage.Action) error {
	switch action {
	case storage.ActionDownload, storage.ActionCopy, storage.ActionDiscard:
		return nil
	default:
		return fmt.Errorf("%w: %q (expected download, copy or discard)", ErrInvalidAction, action)
	}
}

// FinalizeOutput performs a user's terminal action on an output. The
// action record is written before the output is dropped, so a ledger
// failure leaves the output held and is returned. Repeating the call is a
// no-op reporting StatusAlreadyFinalized.
func (h *Hub) FinalizeOutput(id string, action storage.Action) (FinalizationResult, error) {
	if err := finalizeAction(action); err != nil {
		return FinalizationResult{}, err
	}
	return h.finalize("", id, action)
}

// finalize runs the terminal action. A non-empty owner restricts it to
// that owner's outputs; others report StatusAlreadyFinalized.
func (h *Hub) finalize(owner, id string, action storage.Action) (FinalizationResult, error) {
	result := FinalizationResult{ID: id, Action: action, Status: StatusAlreadyFinalized}

	var foreign bool
	out, found, err := h.store.Finalize(id, func(out outputs.Output) error {
		if owner != "" && out.Owner != owner {
			foreign = true
			return errForeignOutput
		}
		_, err := h.ledger.Record(storage.UsageRecord{
			Owner:    out.Owner,
			Skill:    out.Skill,
			Action:   action,
			OutputID: out.ID,
			Tier:     h.TierOf(out.Owner).Name,
		})
		return err
	})
	if foreign || !found {
		return result, nil
	}
	if err != nil {
		return FinalizationResult{}, err
	}

	result.Status = StatusFinalized
	result.Output = &out
	return result, nil
}

// FinalizeBatch applies one terminal action to several of owner's outputs.
// The owner's tier must permit batch operations. Processing stops at the
// first ledger failure; results so far are returned with the error.
func (h *Hub) FinalizeBatch(owner string, ids []string, action storage.Action) ([]FinalizationResult, error) {
	if err := finalizeAction(action); err != nil {
		return nil, err
	}
	t := h.TierOf(owner)
	if !t.Features.BatchOperations {
		return nil, fmt.Errorf("%w (%s)", ErrBatchNotPermitted, t.Name)
	}

	results := make([]FinalizationResult, 0, len(ids))
	for _, id := range ids {
		res, err := h.finalize(owner, id, action)
		if err != nil {
			return results, fmt.Errorf("finalize %s: %w", id, err)
		}
		results = append(results, res)
	}
	return results, nil
}
