package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"tokensale/native/airdrop"
	"tokensale/native/sale"
	"tokensale/native/vesting"
)

// UserProfile aggregates everything the ledger tracks for one account.
type UserProfile struct {
	Sale           *sale.UserInfo    `json:"sale"`
	Schedule       *vesting.Schedule `json:"schedule,omitempty"`
	Claimable      *big.Int          `json:"claimable"`
	AirdropClaimed bool              `json:"airdropClaimed"`
}

// VestingInfo pairs an account's schedule with its claimable balance.
type VestingInfo struct {
	Schedule  *vesting.Schedule `json:"schedule,omitempty"`
	Claimable *big.Int          `json:"claimable"`
}

// view runs a read against committed state. Reads share the operation
// mutex so they never observe a half-applied overlay.
func (l *Ledger) view(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

// SaleInfo returns the composite sale state snapshot.
func (l *Ledger) SaleInfo() (*sale.SaleInfo, error) {
	var info *sale.SaleInfo
	err := l.view(func() error {
		var err error
		info, err = l.sale.SaleInfo()
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// UserProfile returns the account's sale, vesting and airdrop state.
func (l *Ledger) UserProfile(account common.Address) (*UserProfile, error) {
	profile := &UserProfile{}
	err := l.view(func() error {
		info, err := l.sale.UserInfo(account)
		if err != nil {
			return err
		}
		profile.Sale = info
		schedule, err := l.vesting.Schedule(account)
		if err != nil {
			return err
		}
		profile.Schedule = schedule
		claimable, err := l.vesting.Claimable(account)
		if err != nil {
			return err
		}
		profile.Claimable = claimable
		claimed, err := l.airdrop.Claimed(account)
		if err != nil {
			return err
		}
		profile.AirdropClaimed = claimed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// VestingInfo returns the account's schedule and claimable balance.
func (l *Ledger) VestingInfo(account common.Address) (*VestingInfo, error) {
	info := &VestingInfo{}
	err := l.view(func() error {
		schedule, err := l.vesting.Schedule(account)
		if err != nil {
			return err
		}
		info.Schedule = schedule
		claimable, err := l.vesting.Claimable(account)
		if err != nil {
			return err
		}
		info.Claimable = claimable
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// CurrentPrice quotes one native unit under the active pricing mode.
func (l *Ledger) CurrentPrice() (*sale.PriceInfo, error) {
	var info *sale.PriceInfo
	err := l.view(func() error {
		var err error
		info, err = l.sale.CurrentPrice()
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Purchases pages the purchase journal. See sale.Engine.Purchases for
// cursor semantics.
func (l *Ledger) Purchases(cursor string, limit int) ([]*sale.PurchaseRecord, string, error) {
	var (
		recs []*sale.PurchaseRecord
		next string
	)
	err := l.view(func() error {
		var err error
		recs, next, err = l.sale.Purchases(cursor, limit)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return recs, next, nil
}

// ExportPurchasesCSV renders the full purchase journal as CSV and reports
// the row count.
func (l *Ledger) ExportPurchasesCSV() ([]byte, int, error) {
	var (
		data []byte
		rows int
	)
	err := l.view(func() error {
		var err error
		data, rows, err = l.sale.ExportJournalCSV()
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return data, rows, nil
}

// AirdropInfo returns the committed airdrop configuration, or nil when no
// root has been configured.
func (l *Ledger) AirdropInfo() (*airdrop.Config, error) {
	var cfg *airdrop.Config
	err := l.view(func() error {
		var err error
		cfg, err = l.airdrop.Config()
		return err
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Approvals reports the pending approval count for a multisig action.
func (l *Ledger) Approvals(action string) (uint64, error) {
	var count uint64
	err := l.view(func() error {
		var err error
		count, err = l.sale.Approvals(action)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
