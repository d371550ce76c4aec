package scanner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/INLOpen/ledgersnap/core"
	"github.com/stellar/go-stellar-sdk/xdr"
)

// HashSet is a set of 32-byte hashes.
type HashSet map[core.Hash]struct{}

// NewHashSet returns a set holding hs.
func NewHashSet(hs ...core.Hash) HashSet {
	s := make(HashSet, len(hs))
	for _, h := range hs {
		s.Add(h)
	}
	return s
}

func (s HashSet) Add(h core.Hash)    { s[h] = struct{}{} }
func (s HashSet) Remove(h core.Hash) { delete(s, h) }
func (s HashSet) Len() int           { return len(s) }

func (s HashSet) Has(h core.Hash) bool {
	_, ok := s[h]
	return ok
}

// Clone returns an independent copy.
func (s HashSet) Clone() HashSet {
	c := make(HashSet, len(s))
	for h := range s {
		c[h] = struct{}{}
	}
	return c
}

// Sorted returns the members in byte order.
func (s HashSet) Sorted() []core.Hash {
	out := make([]core.Hash, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i][:]) < string(out[j][:]) })
	return out
}

// Filter decides which ledger entries a snapshot keeps. An empty filter
// keeps nothing.
type Filter struct {
	accounts  map[core.AccountID]struct{}
	contracts map[core.Address]struct{}
	code      HashSet
}

// NewFilter returns an empty filter.
func NewFilter() *Filter {
	return &Filter{
		accounts:  make(map[core.AccountID]struct{}),
		contracts: make(map[core.Address]struct{}),
		code:      make(HashSet),
	}
}

// AddAccount keeps the account entry and trustlines of id.
func (f *Filter) AddAccount(id core.AccountID) { f.accounts[id] = struct{}{} }

// AddContract keeps every contract data entry owned by addr.
func (f *Filter) AddContract(addr core.Address) { f.contracts[addr] = struct{}{} }

// AddCodeHash keeps the contract code entry with hash h.
func (f *Filter) AddCodeHash(h core.Hash) { f.code.Add(h) }

// AddAddress parses a strkey: G... keeps an account, C... a contract.
func (f *Filter) AddAddress(s string) error {
	addr, err := core.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%w: address %q: %w", core.ErrInvalidFilter, s, err)
	}
	switch addr.Kind {
	case core.AddressKindAccount:
		id, _ := addr.AccountID()
		f.AddAccount(id)
	default:
		f.AddContract(addr)
	}
	return nil
}

// AddWasmHash parses a hex wasm hash.
func (f *Filter) AddWasmHash(s string) error {
	h, err := core.ParseHash(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return fmt.Errorf("%w: wasm hash: %w", core.ErrInvalidFilter, err)
	}
	f.AddCodeHash(h)
	return nil
}

// Matches reports whether the entry under key should be retained. Only
// account, trustline, contract data and contract code keys can match.
func (f *Filter) Matches(key xdr.LedgerKey) bool {
	switch key.Type {
	case xdr.LedgerEntryTypeAccount:
		return key.Account != nil && f.hasAccount(key.Account.AccountId)
	case xdr.LedgerEntryTypeTrustline:
		return key.TrustLine != nil && f.hasAccount(key.TrustLine.AccountId)
	case xdr.LedgerEntryTypeContractData:
		if key.ContractData == nil {
			return false
		}
		addr, ok := core.AddressFromScAddress(key.ContractData.Contract)
		if !ok {
			return false
		}
		_, ok = f.contracts[addr]
		return ok
	case xdr.LedgerEntryTypeContractCode:
		return key.ContractCode != nil && f.code.Has(core.Hash(key.ContractCode.Hash))
	default:
		return false
	}
}

func (f *Filter) hasAccount(a xdr.AccountId) bool {
	id, ok := core.AccountIDFromXDR(a)
	if !ok {
		return false
	}
	_, ok = f.accounts[id]
	return ok
}

// HasCode reports whether h was requested explicitly.
func (f *Filter) HasCode(h core.Hash) bool { return f.code.Has(h) }

// Empty reports whether the filter keeps nothing.
func (f *Filter) Empty() bool {
	return len(f.accounts) == 0 && len(f.contracts) == 0 && len(f.code) == 0
}

// Counts returns how many accounts, contracts and code hashes are requested.
func (f *Filter) Counts() (accounts, contracts, code int) {
	return len(f.accounts), len(f.contracts), len(f.code)
}
