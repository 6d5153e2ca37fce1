package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
	"github.com/josh-kwaku/anchor-gateway/internal/repository"
)

const (
	USDC       = "stellar:USDC:GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"
	USD        = "iso4217:USD"
	UserAcct   = "GACPRGLNU5R3PKLJWEBI5YYAOVU6V45GGVEG3WVSCHKRFSC3TX4PXOOL"
	AnchorAcct = "GB437MHCXJ3LTVCHMBW5XTCJJA2PAWSMCHPLAUXHJNE6UMD2HRN43IQS"
)

func Amount(value, asset string) *domain.Amount {
	return &domain.Amount{Value: decimal.RequireFromString(value), Asset: asset}
}

// NewTransfer builds an unsaved transfer with sensible defaults for the variant.
func NewTransfer(variant domain.Variant, status domain.Status) *domain.Transfer {
	now := time.Now().UTC().Truncate(time.Microsecond)
	t := &domain.Transfer{
		ID:        uuid.NewString(),
		Variant:   variant,
		Status:    status,
		StartedAt: now,
		UpdatedAt: now,
	}
	switch variant.Kind() {
	case domain.KindDeposit:
		t.DestinationAccount = UserAcct
	case domain.KindWithdrawal, domain.KindSend:
		t.SourceAccount = UserAcct
		t.DepositInfo = &domain.DepositInfo{Account: AnchorAcct, Memo: t.ID[:8], MemoType: "text"}
	}
	return t
}

func SeedTransfer(t *testing.T, db *sql.DB, tr *domain.Transfer) *domain.Transfer {
	t.Helper()

	if err := repository.NewTransferRepository(db).Create(context.Background(), tr); err != nil {
		t.Fatalf("seed transfer %s: %v", tr.ID, err)
	}
	return tr
}

func GetTransferStatus(t *testing.T, db *sql.DB, id string) domain.Status {
	t.Helper()

	var status domain.Status
	err := db.QueryRow(`SELECT status FROM transfers WHERE id = $1`, id).Scan(&status)
	if err != nil {
		t.Fatalf("get transfer status %s: %v", id, err)
	}
	return status
}

func CountPendingReconciliations(t *testing.T, db *sql.DB, transferID string) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pending_reconciliations WHERE transfer_id = $1`, transferID).Scan(&count)
	if err != nil {
		t.Fatalf("count reconciliations for %s: %v", transferID, err)
	}
	return count
}
