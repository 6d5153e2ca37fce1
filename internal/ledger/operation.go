// Package ledger reads settlement data from a Horizon-compatible ledger API.
package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stellar/go/strkey"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

const (
	nativeAssetType            = "native"
	contractTransferChangeType = "transfer"
)

type Page struct {
	Operations []operations.Operation
	// Next is the paging token of the last record, or the request cursor when the page is empty.
	Next string
}

// ValidAccount reports whether s is a plain ledger account address.
func ValidAccount(s string) bool {
	return strkey.IsValidEd25519PublicKey(s)
}

// AssetID returns the scheme-qualified identifier of a ledger asset.
func AssetID(a base.Asset) string {
	if a.Type == nativeAssetType || a.Type == "" {
		return "stellar:native"
	}
	return "stellar:" + a.Code + ":" + a.Issuer
}

// ParseAssetID splits a stellar asset identifier into code and issuer.
// Native lumens report an empty issuer.
func ParseAssetID(id string) (code, issuer string, ok bool) {
	rest, found := strings.CutPrefix(id, "stellar:")
	if !found || rest == "" {
		return "", "", false
	}
	if rest == nativeAssetType {
		return nativeAssetType, "", true
	}
	code, issuer, found = strings.Cut(rest, ":")
	if !found || code == "" || !strkey.IsValidEd25519PublicKey(issuer) {
		return "", "", false
	}
	return code, issuer, true
}

// Classify turns a ledger operation into a payment. Operations of failed
// transactions, non-payment operations and records with unreadable amounts
// report ok=false.
func Classify(op operations.Operation) (domain.ObservedPayment, bool) {
	b := op.GetBase()
	if !b.TransactionSuccessful {
		return domain.ObservedPayment{}, false
	}

	p := domain.ObservedPayment{
		ID:              b.ID,
		TransactionHash: b.TransactionHash,
		PagingToken:     b.PagingToken(),
		CreatedAt:       b.LedgerCloseTime.UTC(),
	}
	if tx := b.Transaction; tx != nil {
		if !tx.Successful {
			return domain.ObservedPayment{}, false
		}
		p.Memo = tx.Memo
		p.MemoType = tx.MemoType
	}

	var (
		amount       string
		sourceAmount string
	)
	switch o := op.(type) {
	case operations.Payment:
		p.Type = domain.PaymentTypePayment
		p.From, p.To = o.From, o.To
		p.Asset = AssetID(o.Asset)
		p.SourceAsset = p.Asset
		amount = o.Amount
	case operations.PathPayment:
		p.Type = domain.PaymentTypePathPayment
		p.From, p.To = o.From, o.To
		p.Asset = AssetID(o.Asset)
		p.SourceAsset = AssetID(base.Asset{Type: o.SourceAssetType, Code: o.SourceAssetCode, Issuer: o.SourceAssetIssuer})
		amount, sourceAmount = o.Amount, o.SourceAmount
	case operations.PathPaymentStrictSend:
		p.Type = domain.PaymentTypePathPayment
		p.From, p.To = o.From, o.To
		p.Asset = AssetID(o.Asset)
		p.SourceAsset = AssetID(base.Asset{Type: o.SourceAssetType, Code: o.SourceAssetCode, Issuer: o.SourceAssetIssuer})
		amount, sourceAmount = o.Amount, o.SourceAmount
	case operations.InvokeHostFunction:
		change, ok := contractTransfer(o.AssetBalanceChanges)
		if !ok {
			return domain.ObservedPayment{}, false
		}
		p.Type = domain.PaymentTypeContractTransfer
		p.From, p.To = change.From, change.To
		p.Asset = AssetID(change.Asset)
		p.SourceAsset = p.Asset
		amount = change.Amount
	default:
		return domain.ObservedPayment{}, false
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.ObservedPayment{}, false
	}
	p.Amount = value
	p.SourceAmount = value

	if p.Type == domain.PaymentTypePathPayment {
		source, err := decimal.NewFromString(sourceAmount)
		if err != nil {
			return domain.ObservedPayment{}, false
		}
		p.SourceAmount = source
	}
	return p, true
}

func contractTransfer(changes []operations.AssetContractBalanceChange) (operations.AssetContractBalanceChange, bool) {
	for _, c := range changes {
		if c.Type == contractTransferChangeType {
			return c, true
		}
	}
	return operations.AssetContractBalanceChange{}, false
}
