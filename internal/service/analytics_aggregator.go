package service

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/near-pulse/internal/registry"
	"github.com/near-pulse/internal/types"
	"github.com/shopspring/decimal"
)

const (
	topCounterpartyLimit = 6
	highActivityCount    = 30
	activeDeFiCount      = 5
	counterpartyNameMax  = 20
	counterpartyNameCut  = 15
	defaultCounterparty  = "📝"
	mostActiveUnknown    = "N/A"
	feePlaces            = 6
	referencePlaces      = 2
)

var averageFeeThreshold = decimal.RequireFromString("0.005")

var weekdayNames = [7]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

// zeroFilledCategories are always present in the breakdown
var zeroFilledCategories = map[types.Category]bool{
	types.CategoryGaming:    true,
	types.CategoryDeFi:      true,
	types.CategoryTransfers: true,
}

// AnalyticsAggregator rolls classified activity up into a period summary
type AnalyticsAggregator struct {
	registry *registry.Registry
}

// NewAnalyticsAggregator creates an aggregator; reg supplies friendly protocol names
func NewAnalyticsAggregator(reg *registry.Registry) *AnalyticsAggregator {
	return &AnalyticsAggregator{registry: reg}
}

type counterpartyStats struct {
	id       string
	txs      int
	fee      decimal.Decimal
	category types.Category
}

// Summarize computes the summary. A non-positive rate means unknown and zeroes every
// reference-currency figure.
func (a *AnalyticsAggregator) Summarize(activities []types.ActivityRecord, rate decimal.Decimal) types.AnalyticsSummary {
	if !rate.IsPositive() {
		rate = decimal.Zero
	}

	total := len(activities)
	summary := types.AnalyticsSummary{
		TotalCount:        total,
		CategoryBreakdown: make(map[types.Category]types.CategoryStat),
	}

	totalFee := decimal.Zero
	counts := make(map[types.Category]int)
	spent := make(map[types.Category]decimal.Decimal)
	unique := make(map[string]struct{})
	days := make([]int, len(weekdayNames))

	for _, act := range activities {
		totalFee = totalFee.Add(act.TotalFee)
		counts[act.Category]++
		spent[act.Category] = spent[act.Category].Add(act.NetDeposited.Mul(rate))

		for _, d := range act.PerReceiptDetail {
			if d.Contract != "" {
				unique[d.Contract] = struct{}{}
			}
		}

		if act.TimestampNs != 0 {
			wd := NormalizeTimestamp(act.TimestampNs).Weekday()
			days[(int(wd)+6)%7]++
		}
	}

	summary.TotalFeeNative = totalFee.Round(feePlaces)
	summary.TotalFeeReference = totalFee.Mul(rate).Round(referencePlaces)
	summary.UniqueCounterparties = len(unique)

	for _, cat := range types.Categories {
		n := counts[cat]
		if n == 0 && !zeroFilledCategories[cat] {
			continue
		}
		summary.CategoryBreakdown[cat] = types.CategoryStat{
			Count:          n,
			PercentOfTotal: percent(n, total),
			ReferenceValue: spent[cat].Round(referencePlaces),
		}
	}

	summary.TopCounterparties = a.topCounterparties(activities)
	summary.MostActive = mostActiveUnknown
	if len(summary.TopCounterparties) > 0 {
		summary.MostActive = summary.TopCounterparties[0].Name
	}

	summary.ActivityByWeekday = make([]types.WeekdayBucket, len(weekdayNames))
	for i, name := range weekdayNames {
		summary.ActivityByWeekday[i] = types.WeekdayBucket{Day: name, Count: days[i]}
	}

	summary.Insights = buildInsights(total, totalFee, counts)
	return summary
}

// topCounterparties ranks per-receipt contracts by receipt count. Ties keep
// first-encountered order.
func (a *AnalyticsAggregator) topCounterparties(activities []types.ActivityRecord) []types.TopCounterparty {
	index := make(map[string]int)
	var stats []*counterpartyStats
	feeTotal := decimal.Zero

	for _, act := range activities {
		for _, d := range act.PerReceiptDetail {
			if d.Contract == "" || d.Contract == types.SystemAccount {
				continue
			}
			i, ok := index[d.Contract]
			if !ok {
				i = len(stats)
				index[d.Contract] = i
				stats = append(stats, &counterpartyStats{id: d.Contract})
			}
			s := stats[i]
			s.txs++
			s.fee = s.fee.Add(d.Fee)
			s.category = act.Category
			feeTotal = feeTotal.Add(d.Fee)
		}
	}

	sort.SliceStable(stats, func(i, j int) bool { return stats[i].txs > stats[j].txs })
	if len(stats) > topCounterpartyLimit {
		stats = stats[:topCounterpartyLimit]
	}

	top := make([]types.TopCounterparty, 0, len(stats))
	for _, s := range stats {
		entry := types.TopCounterparty{
			ID:       s.id,
			Txs:      s.txs,
			Fee:      s.fee.Round(feePlaces),
			FeeShare: shareOf(s.fee, feeTotal),
		}
		if p, ok := a.lookupProtocol(s.id); ok {
			entry.Name, entry.Icon, entry.Category = p.Name, p.Icon, p.Category
		} else {
			entry.Name = counterpartyName(s.id)
			entry.Icon = defaultCounterparty
			entry.Category = capitalize(string(s.category))
		}
		top = append(top, entry)
	}
	return top
}

func (a *AnalyticsAggregator) lookupProtocol(id string) (registry.Protocol, bool) {
	if a.registry == nil {
		return registry.Protocol{}, false
	}
	return a.registry.Protocol(id)
}

func buildInsights(total int, totalFee decimal.Decimal, counts map[types.Category]int) []types.Insight {
	insights := make([]types.Insight, 0, 4)

	if total > highActivityCount {
		insights = append(insights, types.Insight{
			Type: types.InsightInfo,
			Text: fmt.Sprintf("Высокая активность: %d транзакций", total),
			Icon: "📈",
		})
	}

	if total > 0 && totalFee.Div(decimal.NewFromInt(int64(total))).GreaterThan(averageFeeThreshold) {
		insights = append(insights, types.Insight{
			Type: types.InsightWarning,
			Text: "Gas расходы выше среднего",
			Icon: "⚠️",
		})
	}

	if gaming := counts[types.CategoryGaming]; gaming > 0 && gaming*2 > total {
		insights = append(insights, types.Insight{
			Type: types.InsightInfo,
			Text: fmt.Sprintf("Gaming — основная активность (%d txs)", gaming),
			Icon: "🎮",
		})
	}

	if defi := counts[types.CategoryDeFi]; defi > activeDeFiCount {
		insights = append(insights, types.Insight{
			Type: types.InsightSuccess,
			Text: fmt.Sprintf("Активный DeFi-пользователь (%d операций)", defi),
			Icon: "💰",
		})
	}

	if len(insights) == 0 {
		insights = append(insights, types.Insight{
			Type: types.InsightInfo,
			Text: fmt.Sprintf("Всего %d транзакций за период", total),
			Icon: "📊",
		})
	}
	return insights
}

// percent rounds part/whole*100 half to even, defining 0/0 as 0
func percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.RoundToEven(float64(part) * 100 / float64(whole)))
}

func shareOf(part, whole decimal.Decimal) int {
	if !whole.IsPositive() {
		return 0
	}
	return int(part.Mul(decimal.NewFromInt(100)).Div(whole).RoundBank(0).IntPart())
}

func counterpartyName(id string) string {
	name := strings.Split(id, ".")[0]
	if len(name) > counterpartyNameMax {
		return name[:counterpartyNameCut] + "..."
	}
	return name
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
