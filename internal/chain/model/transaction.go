package model

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidTransaction is returned by Validate for transactions that must
// not enter a block.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Genesis transaction fields. The genesis block carries exactly this record.
const (
	SystemSender     = "System"
	GenesisRecipient = "Genesis"
)

// Transaction is an immutable value transfer record. It has no identity
// beyond its content; two transactions with equal fields are equal.
type Transaction struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

// GenesisTransaction returns the synthetic record hashed into the genesis block.
func GenesisTransaction() Transaction {
	return Transaction{Sender: SystemSender, Recipient: GenesisRecipient, Amount: 0}
}

// Canonical returns the text hashed as this transaction's Merkle leaf:
// sender, recipient and decimal amount concatenated without delimiters.
// The encoding is not injective ("a"+"b1"+"2" equals "a"+"b"+"12"); it is
// kept so digests stay compatible with existing chains.
func (t Transaction) Canonical() string {
	return t.Sender + t.Recipient + strconv.FormatInt(t.Amount, 10)
}

// String renders the transaction for humans.
func (t Transaction) String() string {
	return fmt.Sprintf("%s sent %d coins to %s", t.Sender, t.Amount, t.Recipient)
}

// Validate checks the fields a caller controls.
func (t Transaction) Validate() error {
	if t.Sender == "" {
		return fmt.Errorf("%w: sender is required", ErrInvalidTransaction)
	}
	if t.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidTransaction)
	}
	if t.Amount < 0 {
		return fmt.Errorf("%w: amount must be non-negative, got %d", ErrInvalidTransaction, t.Amount)
	}
	return nil
}
