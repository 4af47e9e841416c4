package types

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToNative(t *testing.T) {
	raw := decimal.RequireFromString("2500000000000000000000000")
	assert.True(t, ToNative(raw).Equal(decimal.RequireFromString("2.5")))
	assert.True(t, ToNative(decimal.Zero).IsZero())
}

func TestActivityKindIcon(t *testing.T) {
	assert.Equal(t, "🔄", KindSwap.Icon())
	assert.Equal(t, "📤", KindTransferOut.Icon())
	assert.Equal(t, "📝", ActivityKind("unknown").Icon())
}

func TestRawReceiptTouchesSystem(t *testing.T) {
	assert.True(t, RawReceipt{Sender: "system", Receiver: "alice.near"}.TouchesSystem())
	assert.True(t, RawReceipt{Sender: "alice.near", Receiver: "system"}.TouchesSystem())
	assert.False(t, RawReceipt{Sender: "alice.near", Receiver: "bob.near"}.TouchesSystem())
}

func TestPriceQuoteLookup(t *testing.T) {
	q := PriceQuote{Prices: map[string]decimal.Decimal{
		"wrap.near":  decimal.NewFromFloat(3.5),
		"zero.near":  decimal.Zero,
		"neg.near":   decimal.NewFromInt(-1),
		"lower.near": decimal.NewFromFloat(0.2),
	}}

	t.Run("exact match", func(t *testing.T) {
		p, ok := q.Lookup("wrap.near")
		assert.True(t, ok)
		assert.True(t, p.Equal(decimal.NewFromFloat(3.5)))
	})

	t.Run("falls back to lower-cased identifier", func(t *testing.T) {
		p, ok := q.Lookup("LOWER.near")
		assert.True(t, ok)
		assert.True(t, p.Equal(decimal.NewFromFloat(0.2)))
	})

	t.Run("non-positive prices are absent", func(t *testing.T) {
		_, ok := q.Lookup("zero.near")
		assert.False(t, ok)
		_, ok = q.Lookup("neg.near")
		assert.False(t, ok)
	})

	t.Run("missing identifier", func(t *testing.T) {
		_, ok := q.Lookup("missing.near")
		assert.False(t, ok)
	})
}

func TestPriceQuoteLookupProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("lookup is case-insensitive for lower-case keys", prop.ForAll(
		func(id string, cents int64) bool {
			key := strings.ToLower(id)
			price := decimal.New(cents, -2)
			q := PriceQuote{Prices: map[string]decimal.Decimal{key: price}}
			got, ok := q.Lookup(strings.ToUpper(id))
			return ok && got.Equal(price)
		},
		gen.Identifier(),
		gen.Int64Range(1, 1_000_000),
	))

	properties.Property("lookup never returns a non-positive price", prop.ForAll(
		func(id string, cents int64) bool {
			q := PriceQuote{Prices: map[string]decimal.Decimal{id: decimal.New(cents, -2)}}
			got, ok := q.Lookup(id)
			if cents <= 0 {
				return !ok
			}
			return ok && got.IsPositive()
		},
		gen.Identifier(),
		gen.Int64Range(-1000, 1000),
	))

	properties.TestingRun(t)
}
