package inventory

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/pkg/db"
	"github.com/angelmondragon/gogift-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
)

func seedListing(t *testing.T, client *db.Client, qty int) models.Listing {
	t.Helper()
	listing := models.Listing{
		EnterpriseID: uuid.New(),
		Title:        "Spa voucher",
		UnitPrice:    decimal.RequireFromString("50.00"),
		SellerAmount: decimal.RequireFromString("45.00"),
		AvailableQty: qty,
		CodeMode:     enums.CodeModeGenerateOnDemand,
		Active:       true,
	}
	require.NoError(t, client.DB().Create(&listing).Error)
	return listing
}

func loadListing(t *testing.T, client *db.Client, id uuid.UUID) models.Listing {
	t.Helper()
	var listing models.Listing
	require.NoError(t, client.DB().First(&listing, "id = ?", id).Error)
	return listing
}

func TestReserveDecrementsAndRejectsOversell(t *testing.T) {
	client := dbtest.Open(t)
	listing := seedListing(t, client, 5)
	ledger := NewLedger(0)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := ledger.Reserve(ctx, tx, listing.ID, 3)
		require.Equal(t, 2, res.Remaining)
		return err
	}))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := ledger.Reserve(ctx, tx, listing.ID, 3)
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	require.Equal(t, 2, loadListing(t, client, listing.ID).AvailableQty)
}

func TestReserveRejectsNonPositiveQty(t *testing.T) {
	client := dbtest.Open(t)
	listing := seedListing(t, client, 5)
	ledger := NewLedger(0)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := ledger.Reserve(context.Background(), tx, listing.ID, 0)
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	const available, attempts = 5, 12

	client := dbtest.Open(t)
	listing := seedListing(t, client, available)
	ledger := NewLedger(0)
	ctx := context.Background()

	var succeeded, insufficient atomic.Int32
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			err := client.WithTx(ctx, func(tx *gorm.DB) error {
				_, err := ledger.Reserve(ctx, tx, listing.ID, 1)
				return err
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
				insufficient.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.EqualValues(t, available, succeeded.Load())
	require.EqualValues(t, attempts-available, insufficient.Load())
	require.Equal(t, 0, loadListing(t, client, listing.ID).AvailableQty)
}

func TestLowStockFlagRaisedOnceAndClearedOnRelease(t *testing.T) {
	client := dbtest.Open(t)
	listing := seedListing(t, client, 4)
	ledger := NewLedger(2)
	ctx := context.Background()

	reserve := func(qty int) ReserveResult {
		var out ReserveResult
		require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			out, err = ledger.Reserve(ctx, tx, listing.ID, qty)
			return err
		}))
		return out
	}

	require.False(t, reserve(1).LowStock)
	require.True(t, reserve(1).LowStock)
	require.False(t, reserve(1).LowStock, "flag should only fire once")

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return ledger.Release(ctx, tx, listing.ID, 3)
	}))
	reloaded := loadListing(t, client, listing.ID)
	require.Equal(t, 4, reloaded.AvailableQty)
	require.False(t, reloaded.LowStockNotified)
}

func TestReleaseUnknownListingIsConflict(t *testing.T) {
	client := dbtest.Open(t)
	ledger := NewLedger(0)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return ledger.Release(context.Background(), tx, uuid.New(), 1)
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict))
}

func TestReserveSkipsDeactivatedListing(t *testing.T) {
	client := dbtest.Open(t)
	listing := seedListing(t, client, 5)
	require.NoError(t, client.DB().Model(&models.Listing{}).Where("id = ?", listing.ID).Update("active", false).Error)
	ledger := NewLedger(0)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := ledger.Reserve(ctx, tx, listing.ID, 1)
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidListing), "got %v", err)
	require.Equal(t, 5, loadListing(t, client, listing.ID).AvailableQty)
}
