package costs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// Recommendation thresholds and estimated savings rates.
const (
	expensiveModelAvgCost  = 0.005
	expensiveModelMaxReqs  = 100
	lowCacheHitRate        = 0.30
	lowPrimaryModelShare   = 0.60
	modelSwitchSavingsRate = 0.50
	cacheSavingsRate       = 0.20
	routingSavingsRate     = 0.15
	batchingSavingsRate    = 0.10
)

const recentWindow = 7 * 24 * time.Hour

const maxRecentTransactions = 10

type TierCost struct {
	Cost     float64 `json:"cost"`
	Requests int64   `json:"requests"`
	// Users counts users seen on this tier in the period. It is best-effort: a
	// user who changed tier mid-month is counted under the latest one.
	Users int `json:"users"`
}

type ModelCost struct {
	Model             string  `json:"model"`
	Cost              float64 `json:"cost"`
	Requests          int64   `json:"requests"`
	AvgCostPerRequest float64 `json:"avg_cost_per_request"`
}

// CostReport summarizes one month.
type CostReport struct {
	Period               string                       `json:"period"`
	TotalCost            float64                      `json:"total_cost"`
	TotalRequests        int64                        `json:"total_requests"`
	TierBreakdown        map[models.UserTier]TierCost `json:"tier_breakdown"`
	ModelBreakdown       []ModelCost                  `json:"model_breakdown"`
	CacheSavings         float64                      `json:"cache_savings"`
	CacheHits            int64                        `json:"cache_hits"`
	CacheHitRate         float64                      `json:"cache_hit_rate"`
	ProjectedMonthlyCost float64                      `json:"projected_monthly_cost"`
	GeneratedAt          time.Time                    `json:"generated_at"`
}

// GenerateCostReport reads the aggregates for period, "current" or YYYY-MM.
func (l *Ledger) GenerateCostReport(ctx context.Context, period string) (*CostReport, error) {
	month, err := l.resolvePeriod(period)
	if err != nil {
		return nil, err
	}
	m := monthOf(month)

	r := &CostReport{
		Period:        string(m),
		TierBreakdown: make(map[models.UserTier]TierCost, len(models.Tiers)),
		GeneratedAt:   l.now(),
	}
	if r.TotalCost, err = l.readFloat(ctx, m.total()); err != nil {
		return nil, fmt.Errorf("reading total: %w", err)
	}
	if r.TotalRequests, err = l.readInt(ctx, m.requests()); err != nil {
		return nil, fmt.Errorf("reading requests: %w", err)
	}
	if r.CacheSavings, err = l.readFloat(ctx, m.savings()); err != nil {
		return nil, fmt.Errorf("reading savings: %w", err)
	}
	if r.CacheHits, err = l.readInt(ctx, m.savingsRequests()); err != nil {
		return nil, fmt.Errorf("reading cache hits: %w", err)
	}
	if lookups := r.CacheHits + r.TotalRequests; lookups > 0 {
		r.CacheHitRate = float64(r.CacheHits) / float64(lookups)
	}

	usersByTier, err := l.usersByTier(ctx, m)
	if err != nil {
		return nil, err
	}
	for _, tier := range models.Tiers {
		tc := TierCost{Users: usersByTier[tier]}
		if tc.Cost, err = l.readFloat(ctx, m.tier(tier)); err != nil {
			return nil, fmt.Errorf("reading tier %s: %w", tier, err)
		}
		if tc.Requests, err = l.readInt(ctx, requestsKey(m.tier(tier))); err != nil {
			return nil, fmt.Errorf("reading tier %s requests: %w", tier, err)
		}
		r.TierBreakdown[tier] = tc
	}

	if r.ModelBreakdown, err = l.modelBreakdown(ctx, m); err != nil {
		return nil, err
	}

	r.ProjectedMonthlyCost = l.project(month, r.TotalCost)
	return r, nil
}

func (l *Ledger) modelBreakdown(ctx context.Context, m monthKeys) ([]ModelCost, error) {
	keys, err := l.store.Scan(ctx, m.modelPrefix())
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	out := make([]ModelCost, 0, len(keys)/2)
	for _, id := range dimensionIDs(keys, m.modelPrefix()) {
		mc := ModelCost{Model: id}
		if mc.Cost, err = l.readFloat(ctx, m.model(id)); err != nil {
			return nil, fmt.Errorf("reading model %s: %w", id, err)
		}
		if mc.Requests, err = l.readInt(ctx, requestsKey(m.model(id))); err != nil {
			return nil, fmt.Errorf("reading model %s requests: %w", id, err)
		}
		if mc.Requests > 0 {
			mc.AvgCostPerRequest = mc.Cost / float64(mc.Requests)
		}
		out = append(out, mc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cost > out[j].Cost })
	return out, nil
}

func (l *Ledger) usersByTier(ctx context.Context, m monthKeys) (map[models.UserTier]int, error) {
	keys, err := l.store.Scan(ctx, m.userTierPrefix())
	if err != nil {
		return nil, fmt.Errorf("listing user tiers: %w", err)
	}
	counts := make(map[models.UserTier]int)
	for _, k := range keys {
		data, found, err := l.store.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("reading user tier: %w", err)
		}
		if found {
			counts[models.UserTier(data)]++
		}
	}
	return counts, nil
}

// project extrapolates spend so far over the whole month. Past months are complete.
func (l *Ledger) project(month time.Time, total float64) float64 {
	now := l.now()
	daysInMonth := time.Date(month.Year(), month.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if now.Year() != month.Year() || now.Month() != month.Month() {
		return total
	}
	return total / float64(now.Day()) * float64(daysInMonth)
}

// Recommendation is one cost-saving suggestion with an estimated monthly saving.
type Recommendation struct {
	Type             string  `json:"type"`
	Priority         string  `json:"priority"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	Model            string  `json:"model,omitempty"`
	EstimatedSavings float64 `json:"estimated_savings"`
}

type OptimizationReport struct {
	Recommendations        []Recommendation `json:"recommendations"`
	CurrentMonthlyCost     float64          `json:"current_monthly_cost"`
	ProjectedMonthlyCost   float64          `json:"projected_monthly_cost"`
	TotalPotentialSavings  float64          `json:"total_potential_savings"`
	PotentialOptimizedCost float64          `json:"potential_optimized_cost"`
}

// GetOptimizationRecommendations applies fixed heuristics to the current month.
// Estimates are summed as-is; overlapping suggestions can count the same spend twice.
func (l *Ledger) GetOptimizationRecommendations(ctx context.Context) (*OptimizationReport, error) {
	report, err := l.GenerateCostReport(ctx, "current")
	if err != nil {
		return nil, err
	}

	var recs []Recommendation
	for _, mc := range report.ModelBreakdown {
		if mc.AvgCostPerRequest > expensiveModelAvgCost && mc.Requests < expensiveModelMaxReqs {
			recs = append(recs, Recommendation{
				Type:     "model_optimization",
				Priority: "high",
				Title:    "Use a cheaper model for " + mc.Model,
				Description: fmt.Sprintf("%s averages $%.4f per request over %d requests; a smaller model could serve this volume.",
					mc.Model, mc.AvgCostPerRequest, mc.Requests),
				Model:            mc.Model,
				EstimatedSavings: mc.Cost * modelSwitchSavingsRate,
			})
		}
	}

	if report.CacheHitRate < lowCacheHitRate {
		recs = append(recs, Recommendation{
			Type:     "cache_optimization",
			Priority: "medium",
			Title:    "Improve analysis cache reuse",
			Description: fmt.Sprintf("Only %.1f%% of analyses were served from cache; longer cache TTLs or content normalization would raise reuse.",
				report.CacheHitRate*100),
			EstimatedSavings: report.TotalCost * cacheSavingsRate,
		})
	}

	if report.TotalRequests > 0 && l.cfg.PrimaryModel != "" {
		var primaryReqs int64
		for _, mc := range report.ModelBreakdown {
			if mc.Model == l.cfg.PrimaryModel {
				primaryReqs = mc.Requests
			}
		}
		share := float64(primaryReqs) / float64(report.TotalRequests)
		if share < lowPrimaryModelShare {
			recs = append(recs, Recommendation{
				Type:     "routing_optimization",
				Priority: "medium",
				Title:    "Route more traffic to " + l.cfg.PrimaryModel,
				Description: fmt.Sprintf("%s handles %.1f%% of requests; routing routine documents to it would lower spend.",
					l.cfg.PrimaryModel, share*100),
				Model:            l.cfg.PrimaryModel,
				EstimatedSavings: report.TotalCost * routingSavingsRate,
			})
		}
	}

	recs = append(recs, Recommendation{
		Type:             "batch_processing",
		Priority:         "low",
		Title:            "Batch non-urgent analyses",
		Description:      "Submitting non-urgent documents as low-priority bulk jobs smooths load and enables cheaper batch pricing.",
		EstimatedSavings: report.TotalCost * batchingSavingsRate,
	})

	out := &OptimizationReport{
		Recommendations:      recs,
		CurrentMonthlyCost:   report.TotalCost,
		ProjectedMonthlyCost: report.ProjectedMonthlyCost,
	}
	for _, r := range recs {
		out.TotalPotentialSavings += r.EstimatedSavings
	}
	out.PotentialOptimizedCost = max(0, report.TotalCost-out.TotalPotentialSavings)
	return out, nil
}

// BudgetUsage is a user's spend against their tier budget.
type BudgetUsage struct {
	Tier       models.UserTier `json:"tier"`
	Budget     float64         `json:"budget"`
	Used       float64         `json:"used"`
	Percentage float64         `json:"percentage"`
}

type UserCostSummary struct {
	UserID             string             `json:"user_id"`
	Period             string             `json:"period"`
	TotalCost          float64            `json:"total_cost"`
	TotalRequests      int64              `json:"total_requests"`
	AvgCostPerRequest  float64            `json:"avg_cost_per_request"`
	SavingsFromCache   float64            `json:"savings_from_cache"`
	RecentTransactions []models.CostEvent `json:"recent_transactions"`
	BudgetUsage        BudgetUsage        `json:"budget_usage"`
}

// GetUserCostSummary reports a user's spend for the current month.
func (l *Ledger) GetUserCostSummary(ctx context.Context, userID string) (*UserCostSummary, error) {
	now := l.now()
	m := monthOf(now)

	s := &UserCostSummary{UserID: userID, Period: string(m)}
	var err error
	if s.TotalCost, err = l.readFloat(ctx, m.user(userID)); err != nil {
		return nil, fmt.Errorf("reading user cost: %w", err)
	}
	if s.TotalRequests, err = l.readInt(ctx, requestsKey(m.user(userID))); err != nil {
		return nil, fmt.Errorf("reading user requests: %w", err)
	}
	if s.TotalRequests > 0 {
		s.AvgCostPerRequest = s.TotalCost / float64(s.TotalRequests)
	}
	if s.SavingsFromCache, err = l.readFloat(ctx, m.userSavings(userID)); err != nil {
		return nil, fmt.Errorf("reading user savings: %w", err)
	}

	s.RecentTransactions, err = l.events.Recent(ctx, userID, now.Add(-recentWindow), maxRecentTransactions)
	if err != nil {
		return nil, err
	}
	if s.RecentTransactions == nil {
		s.RecentTransactions = []models.CostEvent{}
	}

	tier := models.TierFree
	data, found, err := l.store.Get(ctx, m.userTier(userID))
	if err != nil {
		return nil, fmt.Errorf("reading user tier: %w", err)
	}
	if found {
		tier = models.UserTier(data)
	}
	budget := budgetFor(tier)
	s.BudgetUsage = BudgetUsage{
		Tier:       tier,
		Budget:     budget,
		Used:       s.TotalCost,
		Percentage: s.TotalCost / budget * 100,
	}
	return s, nil
}

type UserCost struct {
	UserID   string  `json:"user_id"`
	Cost     float64 `json:"cost"`
	Requests int64   `json:"requests"`
}

// CostExport is the billing export for one month.
type CostExport struct {
	Period        string             `json:"period"`
	TotalCost     float64            `json:"total_cost"`
	TierBreakdown map[string]float64 `json:"tier_breakdown"`
	UserCosts     []UserCost         `json:"user_costs"`
	ExportedAt    time.Time          `json:"exported_at"`
}

// ExportCostData lists every user's spend for month ("current" or YYYY-MM), highest first.
func (l *Ledger) ExportCostData(ctx context.Context, month string) (*CostExport, error) {
	t, err := l.resolvePeriod(month)
	if err != nil {
		return nil, err
	}
	m := monthOf(t)

	out := &CostExport{
		Period:        string(m),
		TierBreakdown: make(map[string]float64, len(models.Tiers)),
		UserCosts:     []UserCost{},
		ExportedAt:    l.now(),
	}
	if out.TotalCost, err = l.readFloat(ctx, m.total()); err != nil {
		return nil, fmt.Errorf("reading total: %w", err)
	}
	for _, tier := range models.Tiers {
		v, err := l.readFloat(ctx, m.tier(tier))
		if err != nil {
			return nil, fmt.Errorf("reading tier %s: %w", tier, err)
		}
		out.TierBreakdown[string(tier)] = v
	}

	keys, err := l.store.Scan(ctx, m.userPrefix())
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	for _, id := range dimensionIDs(keys, m.userPrefix()) {
		uc := UserCost{UserID: id}
		if uc.Cost, err = l.readFloat(ctx, m.user(id)); err != nil {
			return nil, fmt.Errorf("reading user %s: %w", id, err)
		}
		if uc.Requests, err = l.readInt(ctx, requestsKey(m.user(id))); err != nil {
			return nil, fmt.Errorf("reading user %s requests: %w", id, err)
		}
		out.UserCosts = append(out.UserCosts, uc)
	}
	sort.Slice(out.UserCosts, func(i, j int) bool { return out.UserCosts[i].Cost > out.UserCosts[j].Cost })
	return out, nil
}
