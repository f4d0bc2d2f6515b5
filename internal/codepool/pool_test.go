package codepool

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/pkg/db"
	"github.com/angelmondragon/gogift-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
)

func fixedListing(codes string) models.Listing {
	return models.Listing{
		ID:            uuid.New(),
		EnterpriseID:  uuid.New(),
		Title:         "Cinema ticket",
		UnitPrice:     decimal.RequireFromString("20.00"),
		SellerAmount:  decimal.RequireFromString("18.00"),
		AvailableQty:  10,
		CodeMode:      enums.CodeModeFixedPool,
		DeclaredCodes: &codes,
		Active:        true,
	}
}

func issue(t *testing.T, client *db.Client, listingID uuid.UUID, values ...string) {
	t.Helper()
	lineID := uuid.New()
	for i, v := range values {
		require.NoError(t, client.DB().Create(&models.GiftCode{
			ListingID:   listingID,
			OrderLineID: lineID,
			Value:       v,
			Position:    i,
		}).Error)
	}
}

func allocate(t *testing.T, client *db.Client, m *Manager, listing models.Listing, qty int) (Allocation, error) {
	t.Helper()
	var out Allocation
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		out, err = m.Allocate(context.Background(), tx, listing, qty)
		return err
	})
	return out, err
}

func TestParseDeclaredCodes(t *testing.T) {
	got := ParseDeclaredCodes(" C-3; A-1,\nB-2;;A-1 \r\n")
	require.Equal(t, []string{"C-3", "A-1", "B-2"}, got)
	require.Empty(t, ParseDeclaredCodes(""))
}

func TestFixedPoolTakesStableSortedSubset(t *testing.T) {
	client := dbtest.Open(t)
	listing := fixedListing("C;A;D;B")
	m := NewManager(Options{})

	alloc, err := allocate(t, client, m, listing, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, alloc.Codes)
	require.Zero(t, alloc.Shortfall)
}

func TestFixedPoolOverbookingServesRemainder(t *testing.T) {
	client := dbtest.Open(t)
	listing := fixedListing("X1;X2;X3")
	issue(t, client, listing.ID, "X1", "X2")
	m := NewManager(Options{})

	alloc, err := allocate(t, client, m, listing, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"X3"}, alloc.Codes)
	require.Equal(t, 1, alloc.Shortfall)
}

func TestFixedPoolStrictModeFails(t *testing.T) {
	client := dbtest.Open(t)
	listing := fixedListing("X1;X2;X3")
	issue(t, client, listing.ID, "X1", "X2")
	m := NewManager(Options{StrictFixedPool: true})

	_, err := allocate(t, client, m, listing, 2)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCodePoolExhausted), "got %v", err)
}

func TestFixedPoolIgnoresCodesIssuedByOtherListings(t *testing.T) {
	client := dbtest.Open(t)
	listing := fixedListing("SHARED;OWN")
	issue(t, client, uuid.New(), "SHARED")
	m := NewManager(Options{})

	alloc, err := allocate(t, client, m, listing, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"OWN"}, alloc.Codes)
	require.Equal(t, 1, alloc.Shortfall)
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	client := dbtest.Open(t)
	issue(t, client, uuid.New(), "AAA")

	seq := []string{"AAA", "BBB", "BBB", "CCC"}
	next := 0
	m := NewManager(Options{Generator: func() (string, error) {
		v := seq[next%len(seq)]
		next++
		return v, nil
	}})

	listing := fixedListing("")
	listing.CodeMode = enums.CodeModeGenerateOnDemand
	alloc, err := allocate(t, client, m, listing, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"BBB", "CCC"}, alloc.Codes)
}

func TestGenerateExhaustsAfterAttempts(t *testing.T) {
	client := dbtest.Open(t)
	issue(t, client, uuid.New(), "AAA")

	m := NewManager(Options{GenerationAttempts: 3, Generator: func() (string, error) { return "AAA", nil }})
	listing := fixedListing("")
	listing.CodeMode = enums.CodeModeGenerateOnDemand

	_, err := allocate(t, client, m, listing, 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCodePoolExhausted), "got %v", err)
}

func TestRandomTokenShape(t *testing.T) {
	a, err := RandomToken()
	require.NoError(t, err)
	b, err := RandomToken()
	require.NoError(t, err)
	require.Len(t, a, 32)
	require.NotEqual(t, a, b)
}
