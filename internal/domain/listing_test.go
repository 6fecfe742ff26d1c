package domain

import (
	"math/big"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDutchPriceAt(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := DutchListing{
		StartPrice:   big.NewInt(100),
		EndPrice:     big.NewInt(20),
		DiscountRate: big.NewInt(1),
		StartAt:      start,
		EndAt:        start.Add(10 * time.Minute),
	}

	require.Equal(t, "100", l.PriceAt(start.Add(-time.Minute)).String())
	require.Equal(t, "100", l.PriceAt(start).String())
	require.Equal(t, "70", l.PriceAt(start.Add(30*time.Second)).String())
	require.Equal(t, "21", l.PriceAt(start.Add(79*time.Second)).String())
	require.Equal(t, "20", l.PriceAt(start.Add(80*time.Second)).String())
	require.Equal(t, "20", l.PriceAt(start.Add(time.Hour)).String())
}

// A window that closes before the decay reaches the floor still quotes
// EndPrice from the close onwards.
func TestDutchPriceAtClosedWindow(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := DutchListing{
		StartPrice:   big.NewInt(100),
		EndPrice:     big.NewInt(20),
		DiscountRate: big.NewInt(1),
		StartAt:      start,
		EndAt:        start.Add(50 * time.Second),
	}

	require.Equal(t, "51", l.PriceAt(start.Add(49*time.Second)).String())
	require.Equal(t, "20", l.PriceAt(start.Add(50*time.Second)).String())
	require.Equal(t, "20", l.PriceAt(start.Add(60*time.Second)).String())
}

// The decayed price never leaves the [EndPrice, StartPrice] band and
// never increases as time moves forward.
func TestDutchPriceAtMonotone(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	prop := func(startPrice, endPrice uint16, rate uint8, a, b uint16) bool {
		hi := int64(startPrice) + int64(endPrice) + 1
		lo := int64(endPrice)
		l := DutchListing{
			StartPrice:   big.NewInt(hi),
			EndPrice:     big.NewInt(lo),
			DiscountRate: big.NewInt(int64(rate) + 1),
			StartAt:      start,
			EndAt:        start.Add(24 * time.Hour),
		}
		t1 := start.Add(time.Duration(a) * time.Second)
		t2 := start.Add(time.Duration(b) * time.Second)
		if t2.Before(t1) {
			t1, t2 = t2, t1
		}
		p1, p2 := l.PriceAt(t1), l.PriceAt(t2)
		inBand := p1.Cmp(l.EndPrice) >= 0 && p1.Cmp(l.StartPrice) <= 0
		return inBand && p1.Cmp(p2) >= 0
	}
	require.NoError(t, quick.Check(prop, nil))
}

func TestEnglishWindow(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := EnglishListing{
		StartPrice: big.NewInt(100),
		StartAt:    start,
		EndAt:      start.Add(time.Hour),
		Status:     ListingStatusActive,
	}

	require.False(t, l.Open(start.Add(-time.Second)))
	require.True(t, l.Open(start))
	require.True(t, l.Open(start.Add(time.Hour-time.Second)))
	require.False(t, l.Open(start.Add(time.Hour)))

	require.False(t, l.Endable(start.Add(30*time.Minute)))
	require.True(t, l.Endable(start.Add(time.Hour)))

	l.Status = ListingStatusCancelled
	require.True(t, l.Endable(start))
}

func TestListingValidate(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.ErrorIs(t, FixedListing{Price: big.NewInt(0)}.Validate(), ErrPriceMustBeAboveZero)
	require.ErrorIs(t, FixedListing{}.Validate(), ErrPriceMustBeAboveZero)
	require.NoError(t, FixedListing{Price: big.NewInt(1)}.Validate())

	require.ErrorIs(t, EnglishListing{
		StartPrice: big.NewInt(100),
		StartAt:    start,
		EndAt:      start,
	}.Validate(), ErrAuctionWindowViolation)

	require.ErrorIs(t, DutchListing{
		StartPrice:   big.NewInt(20),
		EndPrice:     big.NewInt(100),
		DiscountRate: big.NewInt(1),
		StartAt:      start,
		EndAt:        start.Add(time.Minute),
	}.Validate(), ErrPriceMustBeAboveZero)
}

func TestBidStateEscrowed(t *testing.T) {
	state := BidState{}
	require.Equal(t, "0", state.Escrowed().String())

	state = BidState{
		Highest: &Bid{Amount: big.NewInt(180)},
		Superseded: []Bid{
			{Amount: big.NewInt(150)},
			{Amount: big.NewInt(160)},
		},
	}
	require.Equal(t, "490", state.Escrowed().String())
}
