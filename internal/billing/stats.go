package billing

import (
	"context"
	"sort"
	"time"

	"ms-tableside/internal/apperr"
	"ms-tableside/internal/auth"
	"ms-tableside/internal/utils"
)

// CustomerPayments groups payments made from customer devices.
const CustomerPayments = "customer"

type Earnings struct {
	Base     float64 `json:"base"`
	Tips     float64 `json:"tips"`
	Total    float64 `json:"total"`
	Payments int     `json:"payments"`
}

type ServerEarnings struct {
	ServerID  string   `json:"serverId"`
	Today     Earnings `json:"today"`
	Yesterday Earnings `json:"yesterday"`
}

// ServerStats reports what each staff member collected today and yesterday (UTC days).
func (s *Service) ServerStats(ctx context.Context, caller auth.Caller) ([]ServerEarnings, error) {
	if !caller.Can(auth.PermViewStats) {
		return nil, apperr.Forbidden("billing.ServerStats", "role %s cannot view stats", caller.Role)
	}
	restaurantID := caller.RestaurantID
	if caller.Role == auth.RoleSuperAdmin {
		restaurantID = ""
	}

	now := s.Now()
	today := utils.StartOfDay(now)
	yesterday := today.Add(-24 * time.Hour)
	payments, err := s.DB.PaymentsBetween(ctx, restaurantID, yesterday, now.Add(time.Nanosecond))
	if err != nil {
		return nil, err
	}

	byServer := map[string]*ServerEarnings{}
	for _, p := range payments {
		id := CustomerPayments
		if p.ProcessedBy != nil {
			id = *p.ProcessedBy
		}
		se, ok := byServer[id]
		if !ok {
			se = &ServerEarnings{ServerID: id}
			byServer[id] = se
		}
		bucket := &se.Yesterday
		if !p.CreatedAt.Before(today) {
			bucket = &se.Today
		}
		bucket.Base = utils.RoundMoney(bucket.Base + p.Amount)
		bucket.Tips = utils.RoundMoney(bucket.Tips + p.TipAmount)
		bucket.Total = utils.RoundMoney(bucket.Base + bucket.Tips)
		bucket.Payments++
	}

	out := make([]ServerEarnings, 0, len(byServer))
	for _, se := range byServer {
		out = append(out, *se)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Today.Total != out[j].Today.Total {
			return out[i].Today.Total > out[j].Today.Total
		}
		return out[i].ServerID < out[j].ServerID
	})
	return out, nil
}
