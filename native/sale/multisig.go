package sale

import "github.com/ethereum/go-ethereum/common"

// Multisig action identifiers. Approvals accumulate per action under a
// shared counter and reset once the threshold executes.
const (
	ActionFinalizeSale   = "finalize-sale"
	ActionWithdrawUnsold = "withdraw-unsold"
)

type storedApproval struct {
	Count uint64
}

func (e *Engine) signers() ([]common.Address, error) {
	var list []common.Address
	if _, err := e.store.KVGet(signersKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (e *Engine) isSigner(addr common.Address) (bool, error) {
	list, err := e.signers()
	if err != nil {
		return false, err
	}
	for _, signer := range list {
		if signer == addr {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) addSigner(addr common.Address) error {
	var zero common.Address
	if addr == zero {
		return ErrZeroAddress
	}
	list, err := e.signers()
	if err != nil {
		return err
	}
	for _, signer := range list {
		if signer == addr {
			return ErrSignerExists
		}
	}
	return e.store.KVPut(signersKey, append(list, addr))
}

func (e *Engine) removeSigner(addr common.Address) error {
	list, err := e.signers()
	if err != nil {
		return err
	}
	kept := make([]common.Address, 0, len(list))
	found := false
	for _, signer := range list {
		if signer == addr {
			found = true
			continue
		}
		kept = append(kept, signer)
	}
	if !found {
		return ErrSignerUnknown
	}
	return e.store.KVPut(signersKey, kept)
}

// approve records one approval for the action and reports whether the
// threshold was reached. Reaching the threshold resets the counter so the
// next round starts from zero. Approvals are counted, not attributed:
// a signer approving twice advances the counter twice.
func (e *Engine) approve(signer common.Address, action string, threshold uint64) (uint64, bool, error) {
	ok, err := e.isSigner(signer)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, ErrUnauthorizedSigner
	}
	var approval storedApproval
	if _, err := e.store.KVGet(approvalKey(action), &approval); err != nil {
		return 0, false, err
	}
	approval.Count++
	if approval.Count >= threshold {
		if err := e.store.KVPut(approvalKey(action), storedApproval{}); err != nil {
			return 0, false, err
		}
		return approval.Count, true, nil
	}
	if err := e.store.KVPut(approvalKey(action), approval); err != nil {
		return 0, false, err
	}
	return approval.Count, false, nil
}

// Approvals returns the pending approval count for an action.
func (e *Engine) Approvals(action string) (uint64, error) {
	if e == nil || e.store == nil {
		return 0, ErrNotInitialized
	}
	var approval storedApproval
	if _, err := e.store.KVGet(approvalKey(action), &approval); err != nil {
		return 0, err
	}
	return approval.Count, nil
}

// Signers returns the registered multisig signer set.
func (e *Engine) Signers() ([]common.Address, error) {
	if e == nil || e.store == nil {
		return nil, ErrNotInitialized
	}
	return e.signers()
}
