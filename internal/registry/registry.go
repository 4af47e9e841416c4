// Package registry holds the immutable lookup tables used to normalize, price and
// label NEAR tokens and protocols. Tables are loaded once and never mutated.
package registry

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var defaultTables []byte

// Protocol is a friendly label for a well-known contract
type Protocol struct {
	Name     string `yaml:"name"`
	Icon     string `yaml:"icon"`
	Category string `yaml:"category"`
}

type tables struct {
	Decimals       map[string]int      `yaml:"decimals"`
	CoinGeckoIDs   map[string]string   `yaml:"coingecko_ids"`
	MajorTokens    []string            `yaml:"major_tokens"`
	ExcludedTokens []string            `yaml:"excluded_tokens"`
	HotToken       string              `yaml:"hot_token"`
	Protocols      map[string]Protocol `yaml:"protocols"`
}

// Registry is a read-only view over the static tables
type Registry struct {
	decimals      map[string]int
	decimalsLower map[string]int
	coingecko     map[string]string
	major         map[string]struct{}
	excluded      map[string]struct{}
	hotToken      string
	protocols     map[string]Protocol
}

// Load parses registry tables from YAML
func Load(data []byte) (*Registry, error) {
	var t tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}

	r := &Registry{
		decimals:      make(map[string]int, len(t.Decimals)),
		decimalsLower: make(map[string]int, len(t.Decimals)),
		coingecko:     make(map[string]string, len(t.CoinGeckoIDs)),
		major:         make(map[string]struct{}, len(t.MajorTokens)),
		excluded:      make(map[string]struct{}, len(t.ExcludedTokens)),
		hotToken:      t.HotToken,
		protocols:     make(map[string]Protocol, len(t.Protocols)),
	}

	for contract, d := range t.Decimals {
		if d < 0 {
			return nil, fmt.Errorf("negative decimals for %s", contract)
		}
		r.decimals[contract] = d
		r.decimalsLower[strings.ToLower(contract)] = d
	}
	for contract, id := range t.CoinGeckoIDs {
		r.coingecko[strings.ToLower(contract)] = id
	}
	for _, contract := range t.MajorTokens {
		r.major[strings.ToLower(contract)] = struct{}{}
	}
	for _, contract := range t.ExcludedTokens {
		r.excluded[strings.ToLower(contract)] = struct{}{}
	}
	for contract, p := range t.Protocols {
		r.protocols[contract] = p
	}

	return r, nil
}

// Default returns the registry built from the embedded tables
func Default() *Registry {
	r, err := Load(defaultTables)
	if err != nil {
		panic(err)
	}
	return r
}

// Decimals looks up a contract's decimals, case-sensitive first then lower-cased
func (r *Registry) Decimals(contract string) (int, bool) {
	if d, ok := r.decimals[contract]; ok {
		return d, true
	}
	d, ok := r.decimalsLower[strings.ToLower(contract)]
	return d, ok
}

// CoinGeckoID returns the market-data feed id for a contract
func (r *Registry) CoinGeckoID(contract string) (string, bool) {
	id, ok := r.coingecko[strings.ToLower(contract)]
	return id, ok
}

// IsMajor reports membership in the major-token set (case-insensitive)
func (r *Registry) IsMajor(contract string) bool {
	_, ok := r.major[strings.ToLower(contract)]
	return ok
}

// IsExcluded reports whether a token is never listed as a holding
func (r *Registry) IsExcluded(contract string) bool {
	_, ok := r.excluded[strings.ToLower(contract)]
	return ok
}

// HotToken returns the HOT token contract
func (r *Registry) HotToken() string {
	return r.hotToken
}

// Protocol returns the friendly label for a known contract
func (r *Registry) Protocol(contract string) (Protocol, bool) {
	p, ok := r.protocols[contract]
	return p, ok
}
