// Package asset resolves scheme-qualified asset identifiers against the
// operator's configured asset list.
package asset

import (
	"fmt"
	"os"

	"github.com/stellar/go/strkey"
	"gopkg.in/yaml.v3"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

type Asset struct {
	ID           string `yaml:"id"`
	Decimals     int32  `yaml:"decimals"`
	Distribution string `yaml:"distribution_account,omitempty"`
}

type Catalog struct {
	assets map[string]Asset
}

type file struct {
	Assets []Asset `yaml:"assets"`
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("asset.Load: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("asset.Parse: %w", err)
	}

	c := &Catalog{assets: make(map[string]Asset, len(f.Assets))}
	for _, a := range f.Assets {
		if err := domain.ValidateAssetID(a.ID); err != nil {
			return nil, fmt.Errorf("asset.Parse: %w", err)
		}
		if a.Decimals < 0 {
			return nil, fmt.Errorf("asset.Parse: %s: negative decimals", a.ID)
		}
		if a.Distribution != "" && !strkey.IsValidEd25519PublicKey(a.Distribution) {
			return nil, fmt.Errorf("asset.Parse: %s: invalid distribution account %q", a.ID, a.Distribution)
		}
		c.assets[a.ID] = a
	}
	return c, nil
}

func (c *Catalog) Resolve(id string) (Asset, error) {
	a, ok := c.assets[id]
	if !ok {
		return Asset{}, fmt.Errorf("asset %s is not supported: %w", id, domain.ErrInvalidParams)
	}
	return a, nil
}

// Validate checks that the amount's asset is known and that its value fits the asset's precision.
func (c *Catalog) Validate(a *domain.Amount) error {
	asset, err := c.Resolve(a.Asset)
	if err != nil {
		return err
	}
	if !a.Value.Equal(a.Value.Truncate(asset.Decimals)) {
		return fmt.Errorf("amount %s exceeds %d decimals for %s: %w", a.Value, asset.Decimals, a.Asset, domain.ErrInvalidParams)
	}
	return nil
}

// DistributionAccount is the ledger account the anchor pays asset out from.
func (c *Catalog) DistributionAccount(id string) (string, bool) {
	a, ok := c.assets[id]
	if !ok || a.Distribution == "" {
		return "", false
	}
	return a.Distribution, true
}

func (c *Catalog) Assets() []Asset {
	out := make([]Asset, 0, len(c.assets))
	for _, a := range c.assets {
		out = append(out, a)
	}
	return out
}
