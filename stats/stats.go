// Package stats computes dashboard and per-user figures from loaded
// requests and products. Due-date logic comes from ledger so every view
// agrees with the request pages.
package stats

import (
	"sort"
	"time"

	"lab_lending_tool/ledger"
	"lab_lending_tool/models"
)

const DefaultLowStockThreshold = 5

// StatusBreakdown counts requests per status. Every status is present.
func StatusBreakdown(reqs []models.Request) map[models.RequestStatus]int {
	out := make(map[models.RequestStatus]int, len(models.RequestStatuses))
	for _, s := range models.RequestStatuses {
		out[s] = 0
	}
	for _, r := range reqs {
		out[r.Status]++
	}
	return out
}

type MonthBucket struct {
	Month    int                          `json:"month"`
	Name     string                       `json:"name"`
	Total    int                          `json:"total"`
	ByStatus map[models.RequestStatus]int `json:"byStatus"`
}

// Monthly buckets requests of year by IST request month.
func Monthly(reqs []models.Request, year int) []MonthBucket {
	out := make([]MonthBucket, 12)
	for i := range out {
		m := time.Month(i + 1)
		out[i] = MonthBucket{Month: i + 1, Name: m.String()[:3], ByStatus: map[models.RequestStatus]int{}}
	}
	for _, r := range reqs {
		t := r.RequestDate.In(ledger.IST)
		if t.Year() != year {
			continue
		}
		b := &out[t.Month()-1]
		b.Total++
		b.ByStatus[r.Status]++
	}
	return out
}

// LowStock lists products with inStock below threshold, scarcest first.
func LowStock(products []models.Product, threshold int) []models.ProductView {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	var out []models.ProductView
	for _, p := range products {
		if p.InStock < threshold {
			out = append(out, p.View())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InStock != out[j].InStock {
			return out[i].InStock < out[j].InStock
		}
		return out[i].Name < out[j].Name
	})
	return out
}

type ProductDemand struct {
	ProductID string `json:"productId"`
	Name      string `json:"productName"`
	Quantity  int    `json:"quantity"`
	Requests  int    `json:"requests"`
}

// TopRequested ranks products by total requested quantity. names resolves
// product ids when requested lines were loaded without their product.
func TopRequested(reqs []models.Request, names map[string]string, n int) []ProductDemand {
	idx := map[string]int{}
	var out []ProductDemand
	for _, r := range reqs {
		seen := map[string]bool{}
		for _, line := range r.RequestedProducts {
			i, ok := idx[line.ProductID]
			if !ok {
				name := names[line.ProductID]
				if name == "" && line.Product != nil {
					name = line.Product.Name
				}
				out = append(out, ProductDemand{ProductID: line.ProductID, Name: name})
				i = len(out) - 1
				idx[line.ProductID] = i
			}
			out[i].Quantity += line.Quantity
			if !seen[line.ProductID] {
				out[i].Requests++
				seen[line.ProductID] = true
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Requests > out[j].Requests
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

type InventoryTotals struct {
	Products int `json:"products"`
	Quantity int `json:"quantity"`
	InStock  int `json:"inStock"`
	Damaged  int `json:"damaged"`
	Issued   int `json:"issued"`
	LowStock int `json:"lowStock"`
}

type Summary struct {
	Requests        int                          `json:"requests"`
	ByStatus        map[models.RequestStatus]int `json:"byStatus"`
	ActiveLoans     int                          `json:"activeLoans"`
	Overdue         int                          `json:"overdue"`
	PendingReIssues int                          `json:"pendingReIssues"`
	Inventory       InventoryTotals              `json:"inventory"`
}

// Summarize builds the admin summary card.
func Summarize(reqs []models.Request, products []models.Product, threshold int, now time.Time) Summary {
	s := Summary{Requests: len(reqs), ByStatus: StatusBreakdown(reqs)}
	for i := range reqs {
		r := &reqs[i]
		if ledger.PendingReIssue(r) != nil {
			s.PendingReIssues++
		}
		if !ledger.IsActiveLoan(r) {
			continue
		}
		s.ActiveLoans++
		if t, ok := ledger.ComputeTiming(r, now); ok && t.State == ledger.StateOverdue {
			s.Overdue++
		}
	}
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	for _, p := range products {
		s.Inventory.Products++
		s.Inventory.Quantity += p.Quantity
		s.Inventory.InStock += p.InStock
		s.Inventory.Damaged += p.DamagedQuantity
		s.Inventory.Issued += p.Issued()
		if p.InStock < threshold {
			s.Inventory.LowStock++
		}
	}
	return s
}

type UserStats struct {
	Total    int                          `json:"total"`
	ByStatus map[models.RequestStatus]int `json:"byStatus"`
	Holding  int                          `json:"holding"`
	Overdue  int                          `json:"overdue"`
}

// ForUser summarizes one user's requests: counts per status and units still
// held.
func ForUser(reqs []models.Request, now time.Time) UserStats {
	s := UserStats{Total: len(reqs), ByStatus: StatusBreakdown(reqs)}
	for i := range reqs {
		r := &reqs[i]
		if !ledger.IsActiveLoan(r) {
			continue
		}
		for _, n := range ledger.Outstanding(r) {
			s.Holding += n
		}
		if t, ok := ledger.ComputeTiming(r, now); ok && t.State == ledger.StateOverdue {
			s.Overdue++
		}
	}
	return s
}
