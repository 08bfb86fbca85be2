package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainTransfer  = "orgadmin/transfer/v1"
	DomainPredicate = "orgadmin/predicate/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TransferID computes the content-addressed ID of a ledger transfer.
//
// The same distribution run crediting the same recipient always yields the
// same ID, so replaying a run collides on the primary key instead of
// crediting twice.
func TransferID(proposerID int64, recipientKind string, recipientID, amount int64, runAt string) (string, error) {
	obj := IRObject{
		"amount":         IRInt(amount),
		"proposer_id":    IRInt(proposerID),
		"recipient_id":   IRInt(recipientID),
		"recipient_kind": IRString(recipientKind),
		"run_at":         IRString(runAt),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("TransferID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainTransfer, canonical), nil
}

// PredicateKey hashes a canonical predicate encoding.
// Used to label compiled filters in logs and scenario snapshots.
func PredicateKey(canonical []byte) string {
	return hashWithDomain(DomainPredicate, canonical)
}
