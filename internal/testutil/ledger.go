package testutil

import (
	"github.com/INLOpen/ledgersnap/core"
	"github.com/stellar/go-stellar-sdk/xdr"
)

// Symbol is a contract symbol value.
func Symbol(s string) xdr.ScVal {
	sym := xdr.ScSymbol(s)
	return xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: &sym}
}

// U32 is a contract u32 value.
func U32(v uint32) xdr.ScVal {
	u := xdr.Uint32(v)
	return xdr.ScVal{Type: xdr.ScValTypeScvU32, U32: &u}
}

// AccountEntry is an account holding balance.
func AccountEntry(id core.AccountID, balance int64) xdr.LedgerEntry {
	return xdr.LedgerEntry{Data: xdr.LedgerEntryData{
		Type: xdr.LedgerEntryTypeAccount,
		Account: &xdr.AccountEntry{
			AccountId:  id.XDR(),
			Balance:    xdr.Int64(balance),
			Thresholds: xdr.Thresholds{1, 0, 0, 0},
		},
	}}
}

// TrustLineEntry is a trustline of id to a four letter credit asset.
func TrustLineEntry(id core.AccountID, code string, issuer core.AccountID, balance int64) xdr.LedgerEntry {
	var code4 xdr.AssetCode4
	copy(code4[:], code)
	return xdr.LedgerEntry{Data: xdr.LedgerEntryData{
		Type: xdr.LedgerEntryTypeTrustline,
		TrustLine: &xdr.TrustLineEntry{
			AccountId: id.XDR(),
			Asset: xdr.TrustLineAsset{
				Type:      xdr.AssetTypeAssetTypeCreditAlphanum4,
				AlphaNum4: &xdr.AlphaNum4{AssetCode: code4, Issuer: issuer.XDR()},
			},
			Balance: xdr.Int64(balance),
			Limit:   1 << 62,
		},
	}}
}

// OfferEntry is an offer selling the native asset.
func OfferEntry(seller core.AccountID, offerID int64) xdr.LedgerEntry {
	native := xdr.Asset{Type: xdr.AssetTypeAssetTypeNative}
	return xdr.LedgerEntry{Data: xdr.LedgerEntryData{
		Type: xdr.LedgerEntryTypeOffer,
		Offer: &xdr.OfferEntry{
			SellerId: seller.XDR(),
			OfferId:  xdr.Int64(offerID),
			Selling:  native,
			Buying:   native,
			Price:    xdr.Price{N: 1, D: 1},
		},
	}}
}

// DataEntry is a named data entry of an account.
func DataEntry(id core.AccountID, name string) xdr.LedgerEntry {
	return xdr.LedgerEntry{Data: xdr.LedgerEntryData{
		Type: xdr.LedgerEntryTypeData,
		Data: &xdr.DataEntry{AccountId: id.XDR(), DataName: xdr.String64(name)},
	}}
}

// ContractDataEntry is a persistent entry of contract c under a symbol key.
func ContractDataEntry(c core.Address, key string, val uint32) xdr.LedgerEntry {
	return xdr.LedgerEntry{Data: xdr.LedgerEntryData{
		Type: xdr.LedgerEntryTypeContractData,
		ContractData: &xdr.ContractDataEntry{
			Contract:   c.ScAddress(),
			Key:        Symbol(key),
			Durability: xdr.ContractDataDurabilityPersistent,
			Val:        U32(val),
		},
	}}
}

// InstanceEntry is the instance entry of contract c running the wasm with
// hash wasm. Its instance storage holds one counter.
func InstanceEntry(c core.Address, wasm core.Hash) xdr.LedgerEntry {
	h := xdr.Hash(wasm)
	storage := xdr.ScMap{{Key: Symbol("COUNTER"), Val: U32(1)}}
	return xdr.LedgerEntry{Data: xdr.LedgerEntryData{
		Type: xdr.LedgerEntryTypeContractData,
		ContractData: &xdr.ContractDataEntry{
			Contract:   c.ScAddress(),
			Key:        xdr.ScVal{Type: xdr.ScValTypeScvLedgerKeyContractInstance},
			Durability: xdr.ContractDataDurabilityPersistent,
			Val: xdr.ScVal{Type: xdr.ScValTypeScvContractInstance, Instance: &xdr.ScContractInstance{
				Executable: xdr.ContractExecutable{Type: xdr.ContractExecutableTypeContractExecutableWasm, WasmHash: &h},
				Storage:    &storage,
			}},
		},
	}}
}

// CodeEntry is uploaded wasm with hash h.
func CodeEntry(h core.Hash, code string) xdr.LedgerEntry {
	return xdr.LedgerEntry{Data: xdr.LedgerEntryData{
		Type:         xdr.LedgerEntryTypeContractCode,
		ContractCode: &xdr.ContractCodeEntry{Hash: xdr.Hash(h), Code: []byte(code)},
	}}
}

// TTLEntry extends the entry whose key hashes to keyHash.
func TTLEntry(keyHash core.Hash, liveUntil uint32) xdr.LedgerEntry {
	return xdr.LedgerEntry{Data: xdr.LedgerEntryData{
		Type: xdr.LedgerEntryTypeTtl,
		Ttl:  &xdr.TtlEntry{KeyHash: xdr.Hash(keyHash), LiveUntilLedgerSeq: xdr.Uint32(liveUntil)},
	}}
}

// ConfigSettingEntry is the network's maximum contract size setting.
func ConfigSettingEntry(maxSize uint32) xdr.LedgerEntry {
	v := xdr.Uint32(maxSize)
	return xdr.LedgerEntry{Data: xdr.LedgerEntryData{
		Type: xdr.LedgerEntryTypeConfigSetting,
		ConfigSetting: &xdr.ConfigSettingEntry{
			ConfigSettingId:      xdr.ConfigSettingIdConfigSettingContractMaxSizeBytes,
			ContractMaxSizeBytes: &v,
		},
	}}
}

// Balance returns the owner and balance of an account entry.
func Balance(e xdr.LedgerEntry) (core.AccountID, int64, bool) {
	acc, ok := e.Data.GetAccount()
	if !ok {
		return core.AccountID{}, 0, false
	}
	id, ok := core.AccountIDFromXDR(acc.AccountId)
	return id, int64(acc.Balance), ok
}

// Code returns the hash and wasm of a contract code entry.
func Code(e xdr.LedgerEntry) (core.Hash, string, bool) {
	c, ok := e.Data.GetContractCode()
	if !ok {
		return core.Hash{}, "", false
	}
	return core.Hash(c.Hash), string(c.Code), true
}
