package service

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/near-pulse/internal/errors"
	"github.com/near-pulse/internal/logging"
	"github.com/near-pulse/internal/registry"
	"github.com/near-pulse/internal/storage"
	"github.com/near-pulse/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Upstream interfaces for dependency injection

// BalanceSource returns the native balance of an account
type BalanceSource interface {
	GetAccountBalance(ctx context.Context, account string) (types.AccountBalance, error)
}

// StakingSource returns the total staked amount in smallest units
type StakingSource interface {
	GetStakedBalance(ctx context.Context, account string) (decimal.Decimal, error)
}

// InventorySource returns raw fungible token balances
type InventorySource interface {
	GetTokenInventory(ctx context.Context, account string) ([]types.RawTokenRecord, error)
}

// NFTSource returns NFT collections held by an account
type NFTSource interface {
	GetNFTCollections(ctx context.Context, account string) ([]types.NFTCollection, error)
}

// ReceiptSource returns the most recent receipts of an account, newest first
type ReceiptSource interface {
	GetReceipts(ctx context.Context, account string) ([]types.RawReceipt, error)
}

// NativePriceSource returns the NEAR reference exchange rate
type NativePriceSource interface {
	GetNativePrice(ctx context.Context) (decimal.Decimal, error)
}

// HotClaimSource returns the raw HOT get_user payload
type HotClaimSource interface {
	GetHotUser(ctx context.Context, account string) ([]byte, error)
}

// Cache stores whole-result snapshots
type Cache interface {
	GenerateCacheKey(keyType storage.CacheKeyType, params ...string) string
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Invalidate(ctx context.Context, keys ...string) error
}

// Sources groups the upstream collaborators
type Sources struct {
	Balance   BalanceSource
	Staking   StakingSource
	Inventory InventorySource
	NFTs      NFTSource
	Receipts  ReceiptSource
	NearPrice NativePriceSource
	HotClaim  HotClaimSource
}

// AccountServiceConfig holds orchestration settings
type AccountServiceConfig struct {
	Valuer      ValuerConfig
	RecentLimit int
	// ComputeTimeout bounds one shared computation; 0 means 30s
	ComputeTimeout time.Duration
	// Now overrides the clock, mainly for tests
	Now func() time.Time
}

// accountViews are the per-account snapshots dropped by Refresh
var accountViews = []storage.CacheKeyType{
	storage.CacheKeyBalance,
	storage.CacheKeyTransactions,
	storage.CacheKeyStats,
	storage.CacheKeyNFT,
}

const (
	maxAccountLength   = 64
	maxIconLength      = 200
	defaultRecentLimit = 15
	defaultComputeTime = 30 * time.Second
)

var accountPattern = regexp.MustCompile(`^[a-z0-9._-]+$`)

// Output types

// BalanceView is the portfolio of one account
type BalanceView struct {
	Address   string                `json:"address"`
	Near      decimal.Decimal       `json:"near"`
	Locked    decimal.Decimal       `json:"locked"`
	Staking   decimal.Decimal       `json:"staking"`
	Hot       decimal.Decimal       `json:"hot"`
	HotClaim  *types.HotClaimStatus `json:"hotClaim"`
	NearPrice decimal.Decimal       `json:"nearPrice"`
	TotalUSD  decimal.Decimal       `json:"totalUSD"`
	Tokens    types.PortfolioTiers  `json:"tokens"`
}

// ActivityView is the recent activity feed
type ActivityView struct {
	Transactions []types.ActivityRecord `json:"transactions"`
	NearPrice    decimal.Decimal        `json:"nearPrice"`
	Total        int                    `json:"total"`
}

// StatsView is the analytics summary with the rate it was computed at
type StatsView struct {
	types.AnalyticsSummary
	NearPrice decimal.Decimal `json:"nearPrice"`
}

// NFTView lists NFT collections
type NFTView struct {
	Account        string                `json:"account"`
	NFTs           []types.NFTCollection `json:"nfts"`
	TotalContracts int                   `json:"totalContracts"`
	TotalNFTs      int                   `json:"totalNfts"`
}

// AccountService fetches upstream data for one account and runs it through the
// normalization, pricing, classification and analytics pipelines
type AccountService struct {
	sources    Sources
	prices     *PriceResolver
	cache      Cache
	registry   *registry.Registry
	normalizer *TokenNormalizer
	valuer     *PortfolioValuer
	classifier *ActivityClassifier
	aggregator *AnalyticsAggregator
	group      singleflight.Group
	limit      int
	now        func() time.Time

	computeTimeout time.Duration
}

// NewAccountService creates a new account service. cache may be nil.
func NewAccountService(
	sources Sources,
	prices *PriceResolver,
	cache Cache,
	reg *registry.Registry,
	cfg AccountServiceConfig,
) *AccountService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	limit := cfg.RecentLimit
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	computeTimeout := cfg.ComputeTimeout
	if computeTimeout <= 0 {
		computeTimeout = defaultComputeTime
	}

	return &AccountService{
		sources:    sources,
		prices:     prices,
		cache:      cache,
		registry:   reg,
		normalizer: NewTokenNormalizer(reg),
		valuer:     NewPortfolioValuer(reg, cfg.Valuer),
		classifier: NewActivityClassifier(now),
		aggregator: NewAnalyticsAggregator(reg),
		limit:      limit,
		now:        now,

		computeTimeout: computeTimeout,
	}
}

// ValidateAccountID checks and lower-cases a NEAR account id
func ValidateAccountID(account string) (string, error) {
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		return "", errors.NewInvalidAccountError(account, "account id is required")
	}
	if len(account) > maxAccountLength {
		return "", errors.NewInvalidAccountError(account, "account id is longer than 64 characters")
	}
	if !accountPattern.MatchString(account) {
		return "", errors.NewInvalidAccountError(account, "account id may only contain a-z, 0-9, '.', '_' and '-'")
	}
	return account, nil
}

// GetBalance returns the valued portfolio of an account
func (s *AccountService) GetBalance(ctx context.Context, account string) (*BalanceView, error) {
	account, err := ValidateAccountID(account)
	if err != nil {
		return nil, err
	}
	return loadCached(ctx, s, storage.CacheKeyBalance, account, s.computeBalance)
}

// GetActivity returns the most recent classified activities
func (s *AccountService) GetActivity(ctx context.Context, account string) (*ActivityView, error) {
	account, err := ValidateAccountID(account)
	if err != nil {
		return nil, err
	}
	return loadCached(ctx, s, storage.CacheKeyTransactions, account, s.computeActivity)
}

// GetStats returns the analytics summary over the fetched activity window
func (s *AccountService) GetStats(ctx context.Context, account string) (*StatsView, error) {
	account, err := ValidateAccountID(account)
	if err != nil {
		return nil, err
	}
	return loadCached(ctx, s, storage.CacheKeyStats, account, s.computeStats)
}

// GetNFTs returns the NFT collections of an account
func (s *AccountService) GetNFTs(ctx context.Context, account string) (*NFTView, error) {
	account, err := ValidateAccountID(account)
	if err != nil {
		return nil, err
	}
	return loadCached(ctx, s, storage.CacheKeyNFT, account, s.computeNFTs)
}

// Refresh drops every cached view of an account so the next read recomputes it.
// A failing cache tier is logged, not returned.
func (s *AccountService) Refresh(ctx context.Context, account string) error {
	account, err := ValidateAccountID(account)
	if err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}

	keys := make([]string, 0, len(accountViews))
	for _, kt := range accountViews {
		keys = append(keys, s.cache.GenerateCacheKey(kt, account))
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		logging.FromContext(ctx).WithAccount(account).WithError(err).Warn("Cache invalidation failed")
	}
	return nil
}

// loadCached reads the snapshot once, computes on a miss and writes the result once.
// Concurrent misses for the same key share one computation.
func loadCached[T any](
	ctx context.Context,
	s *AccountService,
	keyType storage.CacheKeyType,
	account string,
	compute func(ctx context.Context, account string) (*T, error),
) (*T, error) {
	logger := logging.FromContext(ctx).WithAccount(account)

	key := string(keyType) + ":" + account
	if s.cache != nil {
		key = s.cache.GenerateCacheKey(keyType, account)

		var cached T
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			logger.WithError(err).Warn("Cache read failed")
		} else if hit {
			return &cached, nil
		}
	}

	// The shared computation outlives any single caller: a disconnecting client
	// must not cancel it for the others or leave a degraded snapshot behind.
	ch := s.group.DoChan(key, func() (interface{}, error) {
		computeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.computeTimeout)
		defer cancel()

		result, err := compute(computeCtx, account)
		if err != nil {
			return nil, err
		}
		if s.cache != nil && computeCtx.Err() == nil {
			if err := s.cache.Set(computeCtx, key, result); err != nil {
				logger.WithError(err).Warn("Cache write failed")
			}
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*T), nil
	}
}

func (s *AccountService) computeBalance(ctx context.Context, account string) (*BalanceView, error) {
	var (
		balance   types.AccountBalance
		staked    decimal.Decimal
		records   []types.RawTokenRecord
		hotUser   []byte
		nearPrice decimal.Decimal
	)

	var g errgroup.Group
	if s.sources.Balance != nil {
		g.Go(func() error {
			b, err := s.sources.Balance.GetAccountBalance(ctx, account)
			if err != nil {
				s.degraded(ctx, "balance", account, err)
				return nil
			}
			balance = b
			return nil
		})
	}
	if s.sources.Staking != nil {
		g.Go(func() error {
			v, err := s.sources.Staking.GetStakedBalance(ctx, account)
			if err != nil {
				s.degraded(ctx, "staking", account, err)
				return nil
			}
			staked = v
			return nil
		})
	}
	if s.sources.Inventory != nil {
		g.Go(func() error {
			r, err := s.sources.Inventory.GetTokenInventory(ctx, account)
			if err != nil {
				s.degraded(ctx, "inventory", account, err)
				return nil
			}
			records = r
			return nil
		})
	}
	if s.sources.HotClaim != nil {
		g.Go(func() error {
			u, err := s.sources.HotClaim.GetHotUser(ctx, account)
			if err != nil {
				s.degraded(ctx, "hot_claim", account, err)
				return nil
			}
			hotUser = u
			return nil
		})
	}
	g.Go(func() error {
		nearPrice = s.nearPrice(ctx)
		return nil
	})
	_ = g.Wait()

	holdings, hot := s.holdings(records)
	tiers := s.valuer.Value(holdings, s.resolvePrices(ctx, holdings))

	near := types.ToNative(balance.Amount)
	staking := types.ToNative(staked)
	totalUSD := decimal.Zero
	if nearPrice.IsPositive() {
		totalUSD = near.Add(staking).Mul(nearPrice).Round(2)
	}

	return &BalanceView{
		Address:   account,
		Near:      near.Round(4),
		Locked:    types.ToNative(balance.Locked).Round(4),
		Staking:   staking.Round(4),
		Hot:       hot.Round(2),
		HotClaim:  ComputeHotClaimStatus(hotUser, s.now()),
		NearPrice: nearPrice,
		TotalUSD:  totalUSD,
		Tokens:    tiers,
	}, nil
}

// holdings normalizes inventory records, dropping excluded and empty ones. The HOT
// balance is returned separately.
func (s *AccountService) holdings(records []types.RawTokenRecord) ([]types.TokenHolding, decimal.Decimal) {
	hot := decimal.Zero
	holdings := make([]types.TokenHolding, 0, len(records))

	for _, rec := range records {
		h := s.normalizer.Normalize(rec)
		if s.registry != nil && rec.Contract == s.registry.HotToken() {
			hot = h.NormalizedAmount
		}
		if s.registry != nil && s.registry.IsExcluded(h.ContractID) {
			continue
		}
		if !h.NormalizedAmount.IsPositive() {
			continue
		}
		if len(h.Icon) > maxIconLength {
			h.Icon = ""
		}
		holdings = append(holdings, h)
	}
	return holdings, hot
}

func (s *AccountService) resolvePrices(ctx context.Context, holdings []types.TokenHolding) map[string]decimal.Decimal {
	resolver := s.prices
	if resolver == nil {
		resolver = NewPriceResolver(0)
	}
	return resolver.Resolve(ctx, contractIDs(holdings), NewEmbeddedPriceSource(holdings))
}

func (s *AccountService) computeActivity(ctx context.Context, account string) (*ActivityView, error) {
	var activities []types.ActivityRecord
	var nearPrice decimal.Decimal

	var g errgroup.Group
	g.Go(func() error {
		activities = s.classify(ctx, account)
		return nil
	})
	g.Go(func() error {
		nearPrice = s.nearPrice(ctx)
		return nil
	})
	_ = g.Wait()

	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].TimestampNs > activities[j].TimestampNs
	})

	recent := activities
	if len(recent) > s.limit {
		recent = recent[:s.limit]
	}

	return &ActivityView{
		Transactions: recent,
		NearPrice:    nearPrice,
		Total:        len(activities),
	}, nil
}

func (s *AccountService) computeStats(ctx context.Context, account string) (*StatsView, error) {
	var activities []types.ActivityRecord
	var nearPrice decimal.Decimal

	var g errgroup.Group
	g.Go(func() error {
		activities = s.classify(ctx, account)
		return nil
	})
	g.Go(func() error {
		nearPrice = s.nearPrice(ctx)
		return nil
	})
	_ = g.Wait()

	return &StatsView{
		AnalyticsSummary: s.aggregator.Summarize(activities, nearPrice),
		NearPrice:        nearPrice,
	}, nil
}

func (s *AccountService) computeNFTs(ctx context.Context, account string) (*NFTView, error) {
	view := &NFTView{Account: account, NFTs: []types.NFTCollection{}}
	if s.sources.NFTs == nil {
		return view, nil
	}

	nfts, err := s.sources.NFTs.GetNFTCollections(ctx, account)
	if err != nil {
		s.degraded(ctx, "nft", account, err)
		return view, nil
	}

	view.NFTs = nfts
	view.TotalContracts = len(nfts)
	for _, n := range nfts {
		view.TotalNFTs += n.Count
	}
	return view, nil
}

func (s *AccountService) classify(ctx context.Context, account string) []types.ActivityRecord {
	if s.sources.Receipts == nil {
		return []types.ActivityRecord{}
	}
	receipts, err := s.sources.Receipts.GetReceipts(ctx, account)
	if err != nil {
		s.degraded(ctx, "receipts", account, err)
		return []types.ActivityRecord{}
	}
	return s.classifier.ClassifyActivities(receipts, account)
}

// nearPrice returns the cached reference rate, fetching it on a miss. Zero means unknown.
func (s *AccountService) nearPrice(ctx context.Context) decimal.Decimal {
	var key string
	if s.cache != nil {
		key = s.cache.GenerateCacheKey(storage.CacheKeyNearPrice)
		var cached decimal.Decimal
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached
		}
	}

	if s.sources.NearPrice == nil {
		return decimal.Zero
	}
	price, err := s.sources.NearPrice.GetNativePrice(ctx)
	if err != nil {
		logging.FromContext(ctx).WithSource("near_price").WithError(err).Warn("Source unavailable, using default")
		return decimal.Zero
	}
	if !price.IsPositive() {
		return decimal.Zero
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, price); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Cache write failed")
		}
	}
	return price
}

func (s *AccountService) degraded(ctx context.Context, source, account string, err error) {
	logging.FromContext(ctx).
		WithSource(source).
		WithAccount(account).
		WithError(err).
		Warn("Source unavailable, using default")
}

func contractIDs(holdings []types.TokenHolding) []string {
	ids := make([]string, len(holdings))
	for i, h := range holdings {
		ids[i] = h.ContractID
	}
	return ids
}
