package models

import "time"

// DashboardKPIs are the headline cards of the monthly dashboard.
type DashboardKPIs struct {
	Count            int     `json:"count"`
	DeliveredCount   int     `json:"deliveredCount"`
	DueCount         int     `json:"dueCount"`
	TotalFreight     float64 `json:"totalFreight"`
	DeliveredPercent float64 `json:"deliveredPercent"`
}

// DashboardView is the dashboard tab: the month's records and their KPIs.
type DashboardView struct {
	Month        string        `json:"month"`
	KPIs         DashboardKPIs `json:"kpis"`
	Consignments []Consignment `json:"consignments"`
}

// DueEntry is the outstanding balance of one consignee.
type DueEntry struct {
	Name     string  `json:"name"`
	TotalDue float64 `json:"totalDue"`
	Count    int     `json:"count"`
}

// DueSummary is the dues tab.
type DueSummary struct {
	TotalDue float64    `json:"totalDue"`
	Entries  []DueEntry `json:"entries"`
}

// AccountingTotals sums the three charge components and their grand total.
type AccountingTotals struct {
	Freight    float64 `json:"freight"`
	Charges    float64 `json:"charges"`
	StdCharges float64 `json:"stdCharges"`
	Total      float64 `json:"total"`
}

// DailyCollection is the revenue collected on one day of the month.
type DailyCollection struct {
	Day  int       `json:"day"`
	Date time.Time `json:"date"`
	AccountingTotals
}

// ChartPoint is one stacked bar of the daily collections chart.
type ChartPoint struct {
	Name       string  `json:"name"`
	Freight    float64 `json:"freight"`
	Charges    float64 `json:"charges"`
	StdCharges float64 `json:"stdCharges"`
}

// AccountingSummary is the accounts tab for one month.
type AccountingSummary struct {
	Month  string            `json:"month"`
	Totals AccountingTotals  `json:"totals"`
	Daily  []DailyCollection `json:"daily"`
	Chart  []ChartPoint      `json:"chart"`
}
