package proposals

import (
	"context"
	"fmt"

	"github.com/covenant-labs/covenant/pkg/contracts"
)

// externalCallSelectorSize is the minimum payload length of an external
// call: the leading selector bytes that pick the remote entry point.
const externalCallSelectorSize = 4

// validateAction checks an action's structure at creation time, before any
// state changes.
func validateAction(action contracts.Action) error {
	switch action.Kind {
	case contracts.ActionExternalCall:
		data, err := contracts.Decode[contracts.ExternalCallAction](action.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		if data.Target == "" {
			return fmt.Errorf("%w: external call without target", ErrInvalidAction)
		}
		if len(data.Payload) < externalCallSelectorSize {
			return fmt.Errorf("%w: payload shorter than %d-byte selector", ErrInvalidAction, externalCallSelectorSize)
		}
		return nil

	case contracts.ActionTransfer:
		data, err := contracts.Decode[contracts.TransferAction](action.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		if data.Recipient == "" {
			return fmt.Errorf("%w: transfer without recipient", ErrInvalidAction)
		}
		if data.Amount == 0 {
			return fmt.Errorf("%w: zero-amount transfer", ErrInvalidAction)
		}
		return nil

	case contracts.ActionSetApprovalThreshold:
		data, err := contracts.Decode[contracts.SetApprovalThresholdAction](action.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		if data.Threshold == 0 {
			return fmt.Errorf("%w: threshold must be positive", ErrInvalidAction)
		}
		return nil

	case contracts.ActionSetActiveProposalsLimit:
		data, err := contracts.Decode[contracts.SetActiveProposalsLimitAction](action.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		if data.Limit == 0 {
			return fmt.Errorf("%w: limit must be positive", ErrInvalidAction)
		}
		return nil

	case contracts.ActionSetStorageValue:
		data, err := contracts.Decode[contracts.SetStorageValueAction](action.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		if len(data.Key) == 0 {
			return fmt.Errorf("%w: storage write without key", ErrInvalidAction)
		}
		return nil

	case contracts.ActionDeleteProposal:
		_, err := contracts.Decode[contracts.DeleteProposalAction](action.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown action kind %q", ErrInvalidAction, action.Kind)
	}
}

// executeAction applies one action. Callers hold the engine lock.
func (e *Engine) executeAction(ctx context.Context, action contracts.Action) error {
	switch action.Kind {
	case contracts.ActionExternalCall:
		data, err := contracts.Decode[contracts.ExternalCallAction](action.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		if err := e.sink.Call(ctx, data.Target, data.Payload, data.Value); err != nil {
			return fmt.Errorf("%w: call %s: %v", ErrInvalidAction, data.Target, err)
		}
		_ = e.recorder.Record(ctx, contracts.EventExternalCallExecuted, e.contextID, "", map[string]interface{}{
			"target": data.Target,
			"value":  data.Value,
		})
		return nil

	case contracts.ActionTransfer:
		data, err := contracts.Decode[contracts.TransferAction](action.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		if err := e.sink.Transfer(ctx, data.Recipient, data.Amount); err != nil {
			return fmt.Errorf("%w: transfer to %s: %v", ErrInsufficientBalance, data.Recipient, err)
		}
		_ = e.recorder.Record(ctx, contracts.EventValueTransferred, e.contextID, "", map[string]interface{}{
			"recipient": data.Recipient,
			"amount":    data.Amount,
		})
		return nil

	case contracts.ActionSetApprovalThreshold:
		data, err := contracts.Decode[contracts.SetApprovalThresholdAction](action.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		old := e.cfg.ApprovalThreshold
		e.cfg.ApprovalThreshold = data.Threshold
		_ = e.recorder.Record(ctx, contracts.EventApprovalThresholdChanged, e.contextID, "", map[string]interface{}{
			"old": old,
			"new": data.Threshold,
		})
		return nil

	case contracts.ActionSetActiveProposalsLimit:
		data, err := contracts.Decode[contracts.SetActiveProposalsLimitAction](action.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		old := e.cfg.ActiveProposalsLimit
		e.cfg.ActiveProposalsLimit = data.Limit
		_ = e.recorder.Record(ctx, contracts.EventActiveProposalsLimitChanged, e.contextID, "", map[string]interface{}{
			"old": old,
			"new": data.Limit,
		})
		return nil

	case contracts.ActionSetStorageValue:
		data, err := contracts.Decode[contracts.SetStorageValueAction](action.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		inserted := e.store.setStorage(data.Key, data.Value)
		_ = e.recorder.Record(ctx, contracts.EventStorageValueSet, e.contextID, "", map[string]interface{}{
			"key":      string(data.Key),
			"inserted": inserted,
		})
		return nil

	case contracts.ActionDeleteProposal:
		data, err := contracts.Decode[contracts.DeleteProposalAction](action.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		e.deleteLocked(ctx, data.ProposalID, "")
		return nil

	default:
		return fmt.Errorf("%w: unknown action kind %q", ErrInvalidAction, action.Kind)
	}
}
