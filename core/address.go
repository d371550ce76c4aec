package core

import (
	"fmt"
	"strings"

	"github.com/stellar/go-stellar-sdk/strkey"
	"github.com/stellar/go-stellar-sdk/xdr"
)

// AccountID is an ed25519 public key identifying an account.
type AccountID [32]byte

// ContractID identifies a deployed contract.
type ContractID [32]byte

// AddressKind discriminates Address values. Values match the network's
// ScAddressType.
type AddressKind int32

const (
	AddressKindAccount  AddressKind = AddressKind(xdr.ScAddressTypeScAddressTypeAccount)
	AddressKindContract AddressKind = AddressKind(xdr.ScAddressTypeScAddressTypeContract)
)

// Address is either an account or a contract. It is comparable and can be
// used as a map key.
type Address struct {
	Kind AddressKind
	ID   [32]byte
}

// AccountAddress wraps an account id.
func AccountAddress(id AccountID) Address {
	return Address{Kind: AddressKindAccount, ID: id}
}

// ContractAddress wraps a contract id.
func ContractAddress(id ContractID) Address {
	return Address{Kind: AddressKindContract, ID: id}
}

// AccountID returns the account id and true when a is an account address.
func (a Address) AccountID() (AccountID, bool) {
	if a.Kind != AddressKindAccount {
		return AccountID{}, false
	}
	return AccountID(a.ID), true
}

func (a Address) String() string {
	switch a.Kind {
	case AddressKindAccount:
		return strkey.MustEncode(strkey.VersionByteAccountID, a.ID[:])
	case AddressKindContract:
		return strkey.MustEncode(strkey.VersionByteContract, a.ID[:])
	default:
		return fmt.Sprintf("address(kind=%d)", a.Kind)
	}
}

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ScAddress converts a to the network representation.
func (a Address) ScAddress() xdr.ScAddress {
	if a.Kind == AddressKindContract {
		cid := xdr.ContractId(a.ID)
		return xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeContract, ContractId: &cid}
	}
	acc := AccountID(a.ID).XDR()
	return xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeAccount, AccountId: &acc}
}

// AddressFromScAddress converts an account or contract ScAddress. Other
// address kinds report false.
func AddressFromScAddress(sa xdr.ScAddress) (Address, bool) {
	switch sa.Type {
	case xdr.ScAddressTypeScAddressTypeAccount:
		if sa.AccountId == nil {
			return Address{}, false
		}
		id, ok := AccountIDFromXDR(*sa.AccountId)
		return AccountAddress(id), ok
	case xdr.ScAddressTypeScAddressTypeContract:
		if sa.ContractId == nil {
			return Address{}, false
		}
		return Address{Kind: AddressKindContract, ID: [32]byte(*sa.ContractId)}, true
	default:
		return Address{}, false
	}
}

// ParseAddress decodes a G... account or C... contract strkey.
func ParseAddress(s string) (Address, error) {
	var version strkey.VersionByte
	var kind AddressKind
	switch {
	case strings.HasPrefix(s, "G"):
		version, kind = strkey.VersionByteAccountID, AddressKindAccount
	case strings.HasPrefix(s, "C"):
		version, kind = strkey.VersionByteContract, AddressKindContract
	default:
		return Address{}, &ValidationError{Field: "address", Value: s, Message: "not an account or contract strkey"}
	}
	payload, err := strkey.Decode(version, s)
	if err != nil {
		return Address{}, &ValidationError{Field: "address", Value: s, Message: "invalid strkey: " + err.Error()}
	}
	if len(payload) != 32 {
		return Address{}, &ValidationError{Field: "address", Value: s, Message: "invalid length"}
	}
	return Address{Kind: kind, ID: [32]byte(payload)}, nil
}

func (id AccountID) String() string { return AccountAddress(id).String() }

func (id AccountID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// XDR converts id to the network's ed25519 account id.
func (id AccountID) XDR() xdr.AccountId {
	key := xdr.Uint256(id)
	return xdr.AccountId{Type: xdr.PublicKeyTypePublicKeyTypeEd25519, Ed25519: &key}
}

// AccountIDFromXDR extracts the ed25519 key of an account id.
func AccountIDFromXDR(a xdr.AccountId) (AccountID, bool) {
	if a.Type != xdr.PublicKeyTypePublicKeyTypeEd25519 || a.Ed25519 == nil {
		return AccountID{}, false
	}
	return AccountID(*a.Ed25519), true
}

// ParseAccountID decodes a G... strkey.
func ParseAccountID(s string) (AccountID, error) {
	a, err := ParseAddress(s)
	if err != nil {
		return AccountID{}, err
	}
	id, ok := a.AccountID()
	if !ok {
		return AccountID{}, &ValidationError{Field: "account_id", Value: s, Message: "not an account strkey"}
	}
	return id, nil
}

func (id ContractID) String() string { return ContractAddress(id).String() }
