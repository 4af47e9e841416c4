package service

import (
	"math"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/near-pulse/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultStorageHours = 24

// firespaceHours maps a HOT firespace level to its storage capacity in hours
var firespaceHours = map[int]int{0: 2, 1: 3, 2: 4, 3: 6, 4: 12, 5: 12, 6: 24}

var (
	storageHourFields = []string{"storage_hours", "storage_duration", "storage_fill_hours", "claim_interval", "storage"}
	lastClaimFields   = []string{"last_claimed_at", "last_claim", "claimed_at", "updated_at"}
)

// ComputeHotClaimStatus derives the claim countdown from a get_user payload.
// It returns nil when the payload cannot be parsed.
func ComputeHotClaimStatus(userJSON []byte, now time.Time) *types.HotClaimStatus {
	if len(userJSON) == 0 {
		return nil
	}

	var user map[string]interface{}
	if err := json.Unmarshal(userJSON, &user); err != nil || user == nil {
		return nil
	}

	hours := defaultStorageHours
	if level, ok := numberField(user, "firespace"); ok {
		if h, known := firespaceHours[int(level)]; known {
			hours = h
		}
	} else if v, ok := firstPositive(user, storageHourFields); ok {
		hours = int(v)
	}

	lastClaimMs, _ := firstPositive(user, lastClaimFields)
	if lastClaimMs > 1e15 {
		lastClaimMs /= 1e6
	}

	nextClaim := time.UnixMilli(int64(math.Round(lastClaimMs))).Add(time.Duration(hours) * time.Hour)
	if !now.Before(nextClaim) {
		return &types.HotClaimStatus{ReadyToClaim: true}
	}

	remaining := nextClaim.Sub(now)
	return &types.HotClaimStatus{
		HoursUntilClaim:   int(remaining / time.Hour),
		MinutesUntilClaim: int((remaining % time.Hour) / time.Minute),
	}
}

// firstPositive returns the first field holding a non-zero number
func firstPositive(m map[string]interface{}, keys []string) (float64, bool) {
	for _, k := range keys {
		if v, ok := numberField(m, k); ok && v != 0 {
			return v, true
		}
	}
	return 0, false
}

// numberField reads a numeric or numeric-string field; null counts as absent
func numberField(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
