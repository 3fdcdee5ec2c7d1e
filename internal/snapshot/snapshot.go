// Package snapshot implements the Snapshot Builder (spec §4.3): a pure
// computation over a frozen view of both Side Books that cleans residual
// crossed liquidity and derives the marginal/effective price curves.
package snapshot

import (
	"fmt"

	"b3lob/internal/book"
)

// BookLevels is an ascending-price pair of parallel price/liquidity
// sequences.
type BookLevels struct {
	Prices []int64
	Liq    []int64
}

// SideSnapshot is one side's contribution to a Snapshot (spec §4.3 Step 3).
type SideSnapshot struct {
	BestPrice int64

	Quantity        []int64   // Quantity[k] = k+1
	MargPrices      []int64   // marginal fill price for the k-th unit
	EffPrices       []float64 // running average fill price through the k-th unit
	MargPriceImpact []int64   // buy: marg - best; sell: best - marg (0 at best, negative away from it)
	EffPriceImpact  []float64 // buy: eff - best; sell: best - eff (0 at best, negative away from it)

	Book     BookLevels // cleaned liquidity, low price to high price
	OrigBook BookLevels // raw pre-cleaning non-empty buckets, ascending price

	CumMOS    int64
	CumTrades int64
}

// Snapshot is the top-level analytical record assembled from both sides
// (spec §4.3 Step 4).
type Snapshot struct {
	BAS       int64 // best_sell - best_buy
	MidPrice  float64
	CumMOSNet int64 // buy.cum_mos - sell.cum_mos
	CumMOSAbs int64 // buy.cum_mos + sell.cum_mos

	Buy  SideSnapshot
	Sell SideSnapshot
}

// Build assembles one Snapshot from the current state of both Side Books.
// It mutates nothing in buy/sell: the crossed-liquidity cleaning in Step 2
// operates on cloned slices only.
func Build(buy, sell *book.SideBook, maxSize int64) (Snapshot, error) {
	bPrices, bLiq, err := buy.GetLiquidity()
	if err != nil {
		return Snapshot{}, fmt.Errorf("buy side: %w", err)
	}
	sPrices, sLiq, err := sell.GetLiquidity()
	if err != nil {
		return Snapshot{}, fmt.Errorf("sell side: %w", err)
	}

	cbPrices, cbLiq, csPrices, csLiq := cleanLiquidity(bPrices, bLiq, sPrices, sLiq)

	buySnap, err := buildSideSnapshot(cbPrices, cbLiq, maxSize, true, buy)
	if err != nil {
		return Snapshot{}, fmt.Errorf("buy side: %w", err)
	}
	sellSnap, err := buildSideSnapshot(csPrices, csLiq, maxSize, false, sell)
	if err != nil {
		return Snapshot{}, fmt.Errorf("sell side: %w", err)
	}

	return Snapshot{
		BAS:       sellSnap.BestPrice - buySnap.BestPrice,
		MidPrice:  float64(sellSnap.BestPrice+buySnap.BestPrice) / 2,
		CumMOSNet: buySnap.CumMOS - sellSnap.CumMOS,
		CumMOSAbs: buySnap.CumMOS + sellSnap.CumMOS,
		Buy:       buySnap,
		Sell:      sellSnap,
	}, nil
}

// cleanLiquidity resolves a crossed book (spec §4.3 Step 2) by repeatedly
// trading off the head of both queues until the head prices no longer
// cross. It never mutates its inputs.
func cleanLiquidity(bPrices, bLiq, sPrices, sLiq []int64) (cbPrices, cbLiq, csPrices, csLiq []int64) {
	cbPrices = append([]int64(nil), bPrices...)
	cbLiq = append([]int64(nil), bLiq...)
	csPrices = append([]int64(nil), sPrices...)
	csLiq = append([]int64(nil), sLiq...)

	for len(cbPrices) > 0 && len(csPrices) > 0 && cbPrices[0] >= csPrices[0] {
		trade := min(cbLiq[0], csLiq[0])
		cbLiq[0] -= trade
		csLiq[0] -= trade

		if cbLiq[0] == 0 {
			cbPrices = cbPrices[1:]
			cbLiq = cbLiq[1:]
		}
		if csLiq[0] == 0 {
			csPrices = csPrices[1:]
			csLiq = csLiq[1:]
		}
	}

	return cbPrices, cbLiq, csPrices, csLiq
}

// buildSideSnapshot computes the effective-price curve over cleaned
// (prices, liq) for one side (spec §4.3 Step 3). isBuy selects the sign
// convention for price impact and the book-ordering direction.
func buildSideSnapshot(prices, liq []int64, maxSize int64, isBuy bool, sb *book.SideBook) (SideSnapshot, error) {
	if len(prices) == 0 {
		return SideSnapshot{}, book.ErrEmptyBook
	}

	var totalLiquidity int64
	for _, l := range liq {
		totalLiquidity += l
	}
	total := min(maxSize, totalLiquidity)

	margPrices := make([]int64, total)
	quantity := make([]int64, total)
	effPrices := make([]float64, total)

	// Walk (price, liq) pairs in order, filling min(remaining, liq)
	// marginal-price slots per price, per spec §4.3 Step 3.
	var cumSize int64
	var runningSum int64
	for i, p := range prices {
		remaining := total - cumSize
		if remaining <= 0 {
			break
		}
		sizeAtPrice := min(remaining, liq[i])
		for k := cumSize; k < cumSize+sizeAtPrice; k++ {
			margPrices[k] = p
		}
		cumSize += sizeAtPrice
	}

	for k := int64(0); k < total; k++ {
		runningSum += margPrices[k]
		quantity[k] = k + 1
		effPrices[k] = float64(runningSum) / float64(quantity[k])
	}

	bestPrice := prices[0]

	margImpact := make([]int64, total)
	effImpact := make([]float64, total)
	for k := int64(0); k < total; k++ {
		if isBuy {
			margImpact[k] = margPrices[k] - bestPrice
			effImpact[k] = effPrices[k] - float64(bestPrice)
		} else {
			margImpact[k] = bestPrice - margPrices[k]
			effImpact[k] = float64(bestPrice) - effPrices[k]
		}
	}

	cleanedBook := orderedBookLevels(prices, liq, isBuy)
	origBook := rawNonEmptyBuckets(sb)

	return SideSnapshot{
		BestPrice:       bestPrice,
		Quantity:        quantity,
		MargPrices:      margPrices,
		EffPrices:       effPrices,
		MargPriceImpact: margImpact,
		EffPriceImpact:  effImpact,
		Book:            cleanedBook,
		OrigBook:        origBook,
		CumMOS:          sb.CumMOS(),
		CumTrades:       sb.CumTrades(),
	}, nil
}

// orderedBookLevels returns the cleaned (prices, liq) pair reordered so it
// reads low price to high price on both sides (spec §4.3 Step 3): the buy
// side's best-first (high-to-low) walk is reversed, the sell side's
// best-first (low-to-high) walk is already in the right order.
func orderedBookLevels(prices, liq []int64, isBuy bool) BookLevels {
	if !isBuy {
		return BookLevels{
			Prices: append([]int64(nil), prices...),
			Liq:    append([]int64(nil), liq...),
		}
	}

	n := len(prices)
	rp := make([]int64, n)
	rl := make([]int64, n)
	for i := 0; i < n; i++ {
		rp[i] = prices[n-1-i]
		rl[i] = liq[n-1-i]
	}
	return BookLevels{Prices: rp, Liq: rl}
}

// rawNonEmptyBuckets scans the Side Book's dense vector directly (ascending
// bucket index, i.e. ascending price) for the pre-cleaning, pre-walk
// non-empty buckets (spec §4.3 Step 3 "orig_book"). It deliberately bypasses
// GetLiquidity so it is unaffected by the buy-side bucket-0 exclusion.
func rawNonEmptyBuckets(sb *book.SideBook) BookLevels {
	var prices, liq []int64
	for i := 0; i < sb.BookSize(); i++ {
		if v := sb.BucketAt(i); v > 0 {
			prices = append(prices, sb.Price(i))
			liq = append(liq, v)
		}
	}
	return BookLevels{Prices: prices, Liq: liq}
}
