package core

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/holiman/uint256"
)

// RefundLedger records amounts owed to accounts that have not been paid out yet.
type RefundLedger struct {
	balances map[AccountID]uint256.Int
}

// NewRefundLedger creates an empty ledger.
func NewRefundLedger() *RefundLedger {
	return &RefundLedger{balances: make(map[AccountID]uint256.Int)}
}

// Credit adds amount to the account's balance. Overflow fails without mutating the ledger.
func (l *RefundLedger) Credit(account AccountID, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	balance := l.balances[account]
	if _, overflow := balance.AddOverflow(&balance, amount); overflow {
		return fmt.Errorf("%w: crediting %s to %s", ErrAmountOverflow, amount.Dec(), account.Hex())
	}
	l.balances[account] = balance
	return nil
}

// Balance returns the amount currently owed to the account.
func (l *RefundLedger) Balance(account AccountID) uint256.Int {
	return l.balances[account]
}

// Take reads and zeroes the account's balance.
func (l *RefundLedger) Take(account AccountID) uint256.Int {
	balance := l.balances[account]
	delete(l.balances, account)
	return balance
}

// set overwrites a balance. Used to roll back aborted operations and to restore snapshots.
func (l *RefundLedger) set(account AccountID, amount uint256.Int) {
	if amount.IsZero() {
		delete(l.balances, account)
		return
	}
	l.balances[account] = amount
}

// Total sums all outstanding balances.
func (l *RefundLedger) Total() (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, balance := range l.balances {
		if _, overflow := total.AddOverflow(total, &balance); overflow {
			return nil, ErrAmountOverflow
		}
	}
	return total, nil
}

// Accounts lists every account with a non-zero balance, ordered by address bytes.
func (l *RefundLedger) Accounts() []AccountID {
	accounts := make([]AccountID, 0, len(l.balances))
	for account := range l.balances {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i][:], accounts[j][:]) < 0
	})
	return accounts
}
