package core

import (
	"fmt"

	"github.com/stellar/go-stellar-sdk/xdr"
)

// EntryTypeName is the lower-case name used for a ledger entry type in
// reports and snapshot files.
func EntryTypeName(t xdr.LedgerEntryType) string {
	switch t {
	case xdr.LedgerEntryTypeAccount:
		return "account"
	case xdr.LedgerEntryTypeTrustline:
		return "trustline"
	case xdr.LedgerEntryTypeOffer:
		return "offer"
	case xdr.LedgerEntryTypeData:
		return "data"
	case xdr.LedgerEntryTypeClaimableBalance:
		return "claimable_balance"
	case xdr.LedgerEntryTypeLiquidityPool:
		return "liquidity_pool"
	case xdr.LedgerEntryTypeContractData:
		return "contract_data"
	case xdr.LedgerEntryTypeContractCode:
		return "contract_code"
	case xdr.LedgerEntryTypeConfigSetting:
		return "config_setting"
	case xdr.LedgerEntryTypeTtl:
		return "ttl"
	default:
		return "unknown"
	}
}

// RecordTypeName is the lower-case name of a bucket record type.
func RecordTypeName(t xdr.BucketEntryType) string {
	switch t {
	case xdr.BucketEntryTypeMetaentry:
		return "meta"
	case xdr.BucketEntryTypeLiveentry:
		return "live"
	case xdr.BucketEntryTypeDeadentry:
		return "dead"
	case xdr.BucketEntryTypeInitentry:
		return "init"
	default:
		return "unknown"
	}
}

// KeyID returns the canonical encoding of k. Two keys are equal exactly when
// their KeyIDs are equal, so KeyID is what sets and maps of keys index by.
func KeyID(k xdr.LedgerKey) (string, error) {
	b, err := k.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode %s key: %w", EntryTypeName(k.Type), err)
	}
	return string(b), nil
}

// EntryKey returns the ledger key a bucket record is about. Meta records have
// none and report false.
func EntryKey(e xdr.BucketEntry) (xdr.LedgerKey, bool, error) {
	switch e.Type {
	case xdr.BucketEntryTypeLiveentry, xdr.BucketEntryTypeInitentry:
		if e.LiveEntry == nil {
			return xdr.LedgerKey{}, false, fmt.Errorf("%s record without an entry", RecordTypeName(e.Type))
		}
		k, err := e.LiveEntry.LedgerKey()
		if err != nil {
			return xdr.LedgerKey{}, false, err
		}
		return k, true, nil
	case xdr.BucketEntryTypeDeadentry:
		if e.DeadEntry == nil {
			return xdr.LedgerKey{}, false, fmt.Errorf("dead record without a key")
		}
		return *e.DeadEntry, true, nil
	default:
		return xdr.LedgerKey{}, false, nil
	}
}

// WasmReference returns the wasm hash a contract instance entry executes.
// It reports false for any other entry and for built-in executables.
func WasmReference(e xdr.LedgerEntry) (Hash, bool) {
	cd, ok := e.Data.GetContractData()
	if !ok || cd.Key.Type != xdr.ScValTypeScvLedgerKeyContractInstance {
		return Hash{}, false
	}
	inst, ok := cd.Val.GetInstance()
	if !ok {
		return Hash{}, false
	}
	exe := inst.Executable
	if exe.Type != xdr.ContractExecutableTypeContractExecutableWasm || exe.WasmHash == nil {
		return Hash{}, false
	}
	return Hash(*exe.WasmHash), true
}

// AccountKey is the ledger key of an account.
func AccountKey(id AccountID) xdr.LedgerKey {
	return xdr.LedgerKey{
		Type:    xdr.LedgerEntryTypeAccount,
		Account: &xdr.LedgerKeyAccount{AccountId: id.XDR()},
	}
}

// ContractCodeKey is the ledger key of uploaded wasm.
func ContractCodeKey(h Hash) xdr.LedgerKey {
	return xdr.LedgerKey{
		Type:         xdr.LedgerEntryTypeContractCode,
		ContractCode: &xdr.LedgerKeyContractCode{Hash: xdr.Hash(h)},
	}
}

// ContractInstanceKey is the ledger key of a contract's instance entry.
func ContractInstanceKey(c ContractID) xdr.LedgerKey {
	return xdr.LedgerKey{
		Type: xdr.LedgerEntryTypeContractData,
		ContractData: &xdr.LedgerKeyContractData{
			Contract:   ContractAddress(c).ScAddress(),
			Key:        xdr.ScVal{Type: xdr.ScValTypeScvLedgerKeyContractInstance},
			Durability: xdr.ContractDataDurabilityPersistent,
		},
	}
}

// MetaEntry builds a Meta record.
func MetaEntry(protocolVersion uint32) xdr.BucketEntry {
	return xdr.BucketEntry{
		Type:      xdr.BucketEntryTypeMetaentry,
		MetaEntry: &xdr.BucketMetadata{LedgerVersion: xdr.Uint32(protocolVersion)},
	}
}

// LiveEntry builds a Live record.
func LiveEntry(e xdr.LedgerEntry) xdr.BucketEntry {
	return xdr.BucketEntry{Type: xdr.BucketEntryTypeLiveentry, LiveEntry: &e}
}

// InitEntry builds an Init record.
func InitEntry(e xdr.LedgerEntry) xdr.BucketEntry {
	return xdr.BucketEntry{Type: xdr.BucketEntryTypeInitentry, LiveEntry: &e}
}

// DeadEntry builds a Dead record for k.
func DeadEntry(k xdr.LedgerKey) xdr.BucketEntry {
	return xdr.BucketEntry{Type: xdr.BucketEntryTypeDeadentry, DeadEntry: &k}
}
