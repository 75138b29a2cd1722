// Package contracts holds the address and ABI pairs for every contract the
// service talks to. A Set is built once at startup and never mutated.
package contracts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Role identifiers checked with hasRole on the V2 market contract.
var (
	DefaultAdminRole    = [32]byte{}
	QuestionCreatorRole = RoleID("QUESTION_CREATOR_ROLE")
	QuestionResolveRole = RoleID("QUESTION_RESOLVE_ROLE")
	MarketValidatorRole = RoleID("MARKET_VALIDATOR_ROLE")
)

// RoleID returns keccak256(name), the OpenZeppelin AccessControl role id.
func RoleID(name string) [32]byte {
	return crypto.Keccak256Hash([]byte(name))
}

// Descriptor is one deployed contract.
type Descriptor struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
}

// Pack encodes a call to method.
func (d Descriptor) Pack(method string, args ...any) ([]byte, error) {
	data, err := d.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contracts: pack %s.%s: %w", d.Name, method, err)
	}
	return data, nil
}

// Unpack decodes the return data of method.
func (d Descriptor) Unpack(method string, data []byte) ([]any, error) {
	out, err := d.ABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("contracts: unpack %s.%s: %w", d.Name, method, err)
	}
	return out, nil
}

// Set groups the descriptors for one deployment.
type Set struct {
	Token    Descriptor
	MarketV1 Descriptor
	MarketV2 Descriptor
	Views    Descriptor
}

// Addresses are the hex addresses read from configuration. An empty
// MarketV1 or Views address leaves that descriptor zero-valued.
type Addresses struct {
	Token    string
	MarketV1 string
	MarketV2 string
	Views    string
}

// All returns the non-empty descriptors of the set.
func (s *Set) All() []Descriptor {
	out := make([]Descriptor, 0, 4)
	for _, d := range []Descriptor{s.Token, s.MarketV1, s.MarketV2, s.Views} {
		if d.Address != (common.Address{}) {
			out = append(out, d)
		}
	}
	return out
}

// Load parses the static ABIs and binds them to addrs.
func Load(addrs Addresses) (*Set, error) {
	var errs []error
	build := func(name, hexAddr, rawABI string, required bool) Descriptor {
		hexAddr = strings.TrimSpace(hexAddr)
		if hexAddr == "" {
			if required {
				errs = append(errs, fmt.Errorf("%s: address is required", name))
			}
			return Descriptor{Name: name}
		}
		if !common.IsHexAddress(hexAddr) {
			errs = append(errs, fmt.Errorf("%s: invalid address %q", name, hexAddr))
			return Descriptor{Name: name}
		}
		parsed, err := abi.JSON(strings.NewReader(rawABI))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: parse abi: %w", name, err))
			return Descriptor{Name: name}
		}
		return Descriptor{Name: name, Address: common.HexToAddress(hexAddr), ABI: parsed}
	}

	set := &Set{
		Token:    build("token", addrs.Token, TokenABI, true),
		MarketV1: build("market_v1", addrs.MarketV1, MarketV1ABI, false),
		MarketV2: build("market_v2", addrs.MarketV2, MarketV2ABI, true),
		Views:    build("views", addrs.Views, ViewsABI, false),
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("contracts: load: %w", errors.Join(errs...))
	}
	return set, nil
}
