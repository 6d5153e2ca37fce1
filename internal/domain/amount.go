package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var assetSchemes = []string{"stellar:", "iso4217:"}

type Amount struct {
	Value decimal.Decimal
	Asset string
}

func NewAmount(value, asset string) (*Amount, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("NewAmount: amount is blank: %w", ErrInvalidParams)
	}
	v, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("NewAmount: amount %q is not a number: %w", value, ErrInvalidParams)
	}
	if v.IsNegative() {
		return nil, fmt.Errorf("NewAmount: amount %q is negative: %w", value, ErrInvalidParams)
	}
	if err := ValidateAssetID(asset); err != nil {
		return nil, fmt.Errorf("NewAmount: %w", err)
	}
	return &Amount{Value: v, Asset: asset}, nil
}

// ValidateAssetID rejects blank and unqualified asset identifiers such as "USDC".
func ValidateAssetID(asset string) error {
	if strings.TrimSpace(asset) == "" {
		return fmt.Errorf("asset is blank: %w", ErrInvalidParams)
	}
	for _, scheme := range assetSchemes {
		if strings.HasPrefix(asset, scheme) && len(asset) > len(scheme) {
			return nil
		}
	}
	return fmt.Errorf("asset %q is not scheme-qualified: %w", asset, ErrInvalidParams)
}

func (a *Amount) String() string {
	if a == nil {
		return ""
	}
	return a.Value.String() + " " + a.Asset
}

func (a *Amount) Clone() *Amount {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
