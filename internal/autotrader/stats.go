package autotrader

import (
	"context"
	"log"
	"sort"

	"hijackwatch/internal/model"
)

// Stats is the read-side aggregation over the full position set.
type Stats struct {
	TotalTrades   int     `json:"total_trades"`
	OpenPositions int     `json:"open_positions"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"win_rate"` // percent over closed trades
	TotalPnL      float64 `json:"total_pnl"`
	AvgPnL        float64 `json:"avg_pnl"` // per closed trade

	// Daily profit buckets keyed by close date, oldest first.
	History []PnLBucket `json:"history"`
}

// PnLBucket is one day's realized P&L.
type PnLBucket struct {
	Day    string  `json:"day"` // YYYY-MM-DD (UTC)
	PnL    float64 `json:"pnl"`
	Trades int     `json:"trades"`
}

// ComputeStats aggregates a position set. Pure; no side effects.
func ComputeStats(positions []model.Position) Stats {
	var s Stats
	buckets := make(map[string]*PnLBucket)

	closed := 0
	for _, p := range positions {
		s.TotalTrades++
		if p.Status == model.PositionOpen {
			s.OpenPositions++
			continue
		}
		closed++
		s.TotalPnL += p.Profit
		if p.Profit > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
		day := p.ClosedAt.UTC().Format("2006-01-02")
		b, ok := buckets[day]
		if !ok {
			b = &PnLBucket{Day: day}
			buckets[day] = b
		}
		b.PnL += p.Profit
		b.Trades++
	}

	if closed > 0 {
		s.WinRate = float64(s.Wins) / float64(closed) * 100
		s.AvgPnL = s.TotalPnL / float64(closed)
	}

	s.History = make([]PnLBucket, 0, len(buckets))
	for _, b := range buckets {
		s.History = append(s.History, *b)
	}
	sort.Slice(s.History, func(i, j int) bool { return s.History[i].Day < s.History[j].Day })
	return s
}

// Stats aggregates the trader's full position set. Degrades to zero stats
// on a store failure so read-side endpoints stay available.
func (t *Trader) Stats(ctx context.Context) Stats {
	positions, err := t.store.AllPositions(ctx, 0)
	if err != nil {
		log.Printf("[autotrader] stats query failed, returning empty: %v", err)
		return Stats{}
	}
	return ComputeStats(positions)
}
