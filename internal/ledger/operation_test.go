package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

const issuer = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"

var (
	created = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	usdc    = base.Asset{Type: "credit_alphanum4", Code: "USDC", Issuer: issuer}
)

func opBase(kind string) operations.Base {
	return operations.Base{
		ID:                    "1001",
		PT:                    "1001",
		Type:                  kind,
		TransactionHash:       "abc",
		TransactionSuccessful: true,
		LedgerCloseTime:       created,
		Transaction:           &hProtocol.Transaction{Hash: "abc", Successful: true, Memo: "42", MemoType: "id"},
	}
}

func plainPayment() operations.Payment {
	return operations.Payment{
		Base:   opBase("payment"),
		Asset:  usdc,
		From:   user,
		To:     account,
		Amount: "12.5",
	}
}

func pathPayment(source string) operations.PathPayment {
	pay := plainPayment()
	pay.Base.Type = "path_payment_strict_receive"
	return operations.PathPayment{Payment: pay, SourceAmount: source, SourceAssetType: "native"}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		op       func() operations.Operation
		wantOK   bool
		wantType domain.PaymentType
		check    func(t *testing.T, p domain.ObservedPayment)
	}{
		{
			name:     "plain payment",
			op:       func() operations.Operation { return plainPayment() },
			wantOK:   true,
			wantType: domain.PaymentTypePayment,
			check: func(t *testing.T, p domain.ObservedPayment) {
				assert.Equal(t, "stellar:USDC:"+issuer, p.Asset)
				assert.True(t, decimal.RequireFromString("12.5").Equal(p.Amount))
				assert.Equal(t, user, p.From)
				assert.Equal(t, account, p.To)
				assert.Equal(t, "42", p.Memo)
				assert.Equal(t, "id", p.MemoType)
			},
		},
		{
			name:     "path payment keeps the source leg",
			op:       func() operations.Operation { return pathPayment("13") },
			wantOK:   true,
			wantType: domain.PaymentTypePathPayment,
			check: func(t *testing.T, p domain.ObservedPayment) {
				assert.Equal(t, "stellar:native", p.SourceAsset)
				assert.True(t, decimal.NewFromInt(13).Equal(p.SourceAmount))
			},
		},
		{
			name: "strict send path payment",
			op: func() operations.Operation {
				pay := plainPayment()
				pay.Base.Type = "path_payment_strict_send"
				return operations.PathPaymentStrictSend{Payment: pay, SourceAmount: "14", SourceAssetType: "native"}
			},
			wantOK:   true,
			wantType: domain.PaymentTypePathPayment,
			check: func(t *testing.T, p domain.ObservedPayment) {
				assert.True(t, decimal.NewFromInt(14).Equal(p.SourceAmount))
			},
		},
		{
			name: "path payment with unreadable source amount",
			op:   func() operations.Operation { return pathPayment("n/a") },
		},
		{
			name: "path payment without source amount",
			op:   func() operations.Operation { return pathPayment("") },
		},
		{
			name: "contract transfer",
			op: func() operations.Operation {
				return operations.InvokeHostFunction{
					Base: opBase("invoke_host_function"),
					AssetBalanceChanges: []operations.AssetContractBalanceChange{
						{Type: "mint", To: user, Amount: "1", Asset: base.Asset{Type: "native"}},
						{Type: "transfer", From: user, To: account, Amount: "3", Asset: usdc},
					},
				}
			},
			wantOK:   true,
			wantType: domain.PaymentTypeContractTransfer,
			check: func(t *testing.T, p domain.ObservedPayment) {
				assert.Equal(t, user, p.From)
				assert.Equal(t, account, p.To)
				assert.Equal(t, "stellar:USDC:"+issuer, p.Asset)
				assert.True(t, decimal.NewFromInt(3).Equal(p.Amount))
			},
		},
		{
			name: "contract call without transfer",
			op: func() operations.Operation {
				return operations.InvokeHostFunction{Base: opBase("invoke_host_function")}
			},
		},
		{
			name: "failed transaction",
			op: func() operations.Operation {
				pay := plainPayment()
				pay.TransactionSuccessful = false
				return pay
			},
		},
		{
			name: "failed joined transaction",
			op: func() operations.Operation {
				pay := plainPayment()
				pay.Transaction.Successful = false
				return pay
			},
		},
		{
			name: "account creation is not a payment",
			op: func() operations.Operation {
				return operations.CreateAccount{Base: opBase("create_account"), Funder: user, Account: account, StartingBalance: "5"}
			},
		},
		{
			name: "unparseable amount",
			op: func() operations.Operation {
				pay := plainPayment()
				pay.Amount = "lots"
				return pay
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := Classify(tc.op())
			require.Equal(t, tc.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tc.wantType, p.Type)
			assert.Equal(t, "1001", p.ID)
			assert.Equal(t, "1001", p.PagingToken)
			assert.Equal(t, created, p.CreatedAt)
			if tc.check != nil {
				tc.check(t, p)
			}
		})
	}
}

func TestParseAssetID(t *testing.T) {
	code, iss, ok := ParseAssetID("stellar:USDC:" + issuer)
	require.True(t, ok)
	assert.Equal(t, "USDC", code)
	assert.Equal(t, issuer, iss)

	code, _, ok = ParseAssetID("stellar:native")
	require.True(t, ok)
	assert.Equal(t, "native", code)

	for _, bad := range []string{"iso4217:USD", "stellar:", "stellar:USDC", "USDC", "stellar:USDC:GISSUER"} {
		_, _, ok := ParseAssetID(bad)
		assert.False(t, ok, bad)
	}
}

func TestValidAccount(t *testing.T) {
	assert.True(t, ValidAccount(account))
	assert.False(t, ValidAccount(""))
	assert.False(t, ValidAccount("GACC"))
}
