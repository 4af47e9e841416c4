package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/near-pulse/internal/registry"
	"github.com/near-pulse/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-10-19 is a Monday
var mondayNoon = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func activity(cat types.Category, fee string, contracts ...string) types.ActivityRecord {
	rec := types.ActivityRecord{
		ID:          fmt.Sprintf("%s-%v", cat, contracts),
		Category:    cat,
		TimestampNs: mondayNoon.UnixNano(),
		TotalFee:    dec(fee),
	}
	for _, c := range contracts {
		rec.PerReceiptDetail = append(rec.PerReceiptDetail, types.ReceiptDetail{Method: "call", Contract: c, Fee: dec(fee)})
	}
	return rec
}

func insightTexts(insights []types.Insight) []string {
	out := make([]string, len(insights))
	for i, in := range insights {
		out[i] = in.Text
	}
	return out
}

func TestSummarize_HighActivityGamingScenario(t *testing.T) {
	var activities []types.ActivityRecord
	for i := 0; i < 25; i++ {
		activities = append(activities, activity(types.CategoryGaming, "0.0001", "game.hot.tg"))
	}
	for i := 0; i < 15; i++ {
		activities = append(activities, activity(types.CategoryTransfers, "0.0001", "bob.near"))
	}

	s := NewAnalyticsAggregator(registry.Default()).Summarize(activities, dec("5"))

	assert.Equal(t, 40, s.TotalCount)
	assert.Equal(t, []string{
		"Высокая активность: 40 транзакций",
		"Gaming — основная активность (25 txs)",
	}, insightTexts(s.Insights))
	assert.Equal(t, types.InsightInfo, s.Insights[0].Type)
	assert.Equal(t, "🎮", s.Insights[1].Icon)
}

func TestSummarize_Totals(t *testing.T) {
	a1 := activity(types.CategoryDeFi, "0.002", "v2.ref-finance.near", "wrap.near")
	a1.NetDeposited = dec("2")
	a2 := activity(types.CategoryTransfers, "0.001", "bob.near")
	a2.NetDeposited = dec("1.5")

	s := NewAnalyticsAggregator(registry.Default()).Summarize([]types.ActivityRecord{a1, a2}, dec("3"))

	assert.True(t, s.TotalFeeNative.Equal(dec("0.003")))
	assert.True(t, s.TotalFeeReference.Equal(dec("0.01")), "got %s", s.TotalFeeReference)
	assert.Equal(t, 3, s.UniqueCounterparties)

	require.Contains(t, s.CategoryBreakdown, types.CategoryDeFi)
	assert.Equal(t, 1, s.CategoryBreakdown[types.CategoryDeFi].Count)
	assert.Equal(t, 50, s.CategoryBreakdown[types.CategoryDeFi].PercentOfTotal)
	assert.True(t, s.CategoryBreakdown[types.CategoryDeFi].ReferenceValue.Equal(dec("6")))
	assert.True(t, s.CategoryBreakdown[types.CategoryTransfers].ReferenceValue.Equal(dec("4.5")))

	assert.Equal(t, []string{"Всего 2 транзакций за период"}, insightTexts(s.Insights))
}

func TestSummarize_BreakdownShape(t *testing.T) {
	agg := NewAnalyticsAggregator(registry.Default())

	s := agg.Summarize(nil, decimal.Zero)
	assert.Len(t, s.CategoryBreakdown, 3)
	assert.Contains(t, s.CategoryBreakdown, types.CategoryGaming)
	assert.Contains(t, s.CategoryBreakdown, types.CategoryDeFi)
	assert.Contains(t, s.CategoryBreakdown, types.CategoryTransfers)
	assert.NotContains(t, s.CategoryBreakdown, types.CategoryNFT)
	assert.Equal(t, 0, s.CategoryBreakdown[types.CategoryGaming].PercentOfTotal)
	assert.Equal(t, "N/A", s.MostActive)
	assert.Equal(t, []string{"Всего 0 транзакций за период"}, insightTexts(s.Insights))

	s = agg.Summarize([]types.ActivityRecord{activity(types.CategoryNFT, "0", "x.paras.near")}, decimal.Zero)
	assert.Len(t, s.CategoryBreakdown, 4)
	assert.Equal(t, 100, s.CategoryBreakdown[types.CategoryNFT].PercentOfTotal)
}

func TestSummarize_UnknownRateZeroesReference(t *testing.T) {
	a := activity(types.CategoryDeFi, "0.01", "app.near")
	a.NetDeposited = dec("10")

	s := NewAnalyticsAggregator(nil).Summarize([]types.ActivityRecord{a}, decimal.Zero)

	assert.True(t, s.TotalFeeReference.IsZero())
	assert.True(t, s.CategoryBreakdown[types.CategoryDeFi].ReferenceValue.IsZero())
	assert.Equal(t, []string{"Gas расходы выше среднего"}, insightTexts(s.Insights))
}

func TestSummarize_TopCounterparties(t *testing.T) {
	acts := []types.ActivityRecord{
		activity(types.CategoryOther, "0.001", "first-contract.near"),
		activity(types.CategoryGaming, "0.001", "game.hot.tg", "game.hot.tg"),
		activity(types.CategoryOther, "0.001", "a-very-long-contract-name-here.near"),
		activity(types.CategoryDeFi, "0.001", "v2.ref-finance.near", types.SystemAccount, ""),
		activity(types.CategoryOther, "0.001", "c4.near", "c5.near", "c6.near", "c7.near"),
	}

	top := NewAnalyticsAggregator(registry.Default()).topCounterparties(acts)

	require.Len(t, top, 6)
	assert.Equal(t, "game.hot.tg", top[0].ID)
	assert.Equal(t, "Hot Protocol", top[0].Name)
	assert.Equal(t, "🔥", top[0].Icon)
	assert.Equal(t, "Gaming", top[0].Category)
	assert.Equal(t, 2, top[0].Txs)

	// ties keep encounter order
	assert.Equal(t, "first-contract.near", top[1].ID)
	assert.Equal(t, "first-contract", top[1].Name)
	assert.Equal(t, "Other", top[1].Category)
	assert.Equal(t, "a-very-long-con...", top[2].Name)
	assert.Equal(t, "Ref Finance", top[3].Name)
	assert.Equal(t, "c4.near", top[4].ID)
	assert.Equal(t, "c5.near", top[5].ID)

	// 9 counted receipts with equal fees
	assert.Equal(t, 22, top[0].FeeShare)
	assert.Equal(t, 11, top[1].FeeShare)
}

func TestSummarize_Weekdays(t *testing.T) {
	sunday := activity(types.CategoryOther, "0", "x.near")
	sunday.TimestampNs = mondayNoon.Add(-24 * time.Hour).UnixMilli()
	undated := activity(types.CategoryOther, "0", "y.near")
	undated.TimestampNs = 0

	s := NewAnalyticsAggregator(nil).Summarize([]types.ActivityRecord{
		activity(types.CategoryOther, "0", "z.near"),
		sunday,
		undated,
	}, decimal.Zero)

	require.Len(t, s.ActivityByWeekday, 7)
	assert.Equal(t, types.WeekdayBucket{Day: "Пн", Count: 1}, s.ActivityByWeekday[0])
	assert.Equal(t, types.WeekdayBucket{Day: "Вс", Count: 1}, s.ActivityByWeekday[6])
	assert.Equal(t, 0, s.ActivityByWeekday[3].Count)
}

func TestSummarize_ActiveDeFi(t *testing.T) {
	var acts []types.ActivityRecord
	for i := 0; i < 6; i++ {
		acts = append(acts, activity(types.CategoryDeFi, "0", "v2.ref-finance.near"))
	}
	s := NewAnalyticsAggregator(registry.Default()).Summarize(acts, decimal.Zero)

	assert.Equal(t, []string{"Активный DeFi-пользователь (6 операций)"}, insightTexts(s.Insights))
	assert.Equal(t, types.InsightSuccess, s.Insights[0].Type)
	assert.Equal(t, "Ref Finance", s.MostActive)
}

func TestPercent_RoundsHalfToEven(t *testing.T) {
	tests := []struct {
		part, whole, want int
	}{
		{1, 8, 12},
		{3, 8, 38},
		{1, 3, 33},
		{2, 3, 67},
		{0, 0, 0},
		{5, 5, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, percent(tt.part, tt.whole), "%d/%d", tt.part, tt.whole)
	}

	assert.Equal(t, 12, shareOf(decimal.NewFromInt(1), decimal.NewFromInt(8)))
	assert.Equal(t, 0, shareOf(decimal.NewFromInt(1), decimal.Zero))
}
