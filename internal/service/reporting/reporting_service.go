package reporting

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/consignments/internal/domain/models"
)

// MonthLayout is the format of a month selection key.
const MonthLayout = "2006-01"

// ErrInvalidMonth indicates a month key that is not YYYY-MM.
var ErrInvalidMonth = errors.New("invalid month key")

// Engine derives the dashboard views from a loaded record set. Every method is
// a pure function of its arguments; the engine only carries the time zone used
// to cut timestamps into calendar months and days.
//
// Sorting and the dashboard month filter use warehouseReceivedDateTime.
// Accounting always uses deliveringDateTime.
type Engine struct {
	loc *time.Location
}

// NewEngine builds an engine that buckets timestamps in loc (UTC when nil).
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{loc: loc}
}

// Location returns the zone used for calendar bucketing.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// MonthKey formats t as a month selection key in the engine's zone.
func (e *Engine) MonthKey(t time.Time) string {
	return t.In(e.loc).Format(MonthLayout)
}

// ParseMonthKey validates a YYYY-MM key.
func ParseMonthKey(month string) (string, error) {
	if _, err := time.Parse(MonthLayout, month); err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidMonth, month)
	}
	return month, nil
}

// Sort returns a copy of records ordered newest first by warehouse received
// time. Records without that time come last; equal keys keep input order.
func (e *Engine) Sort(records []models.Consignment) []models.Consignment {
	out := make([]models.Consignment, len(records))
	copy(out, records)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].WarehouseReceivedDateTime, out[j].WarehouseReceivedDateTime
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return out
}

// FilterByMonth keeps the records whose warehouse received time falls in
// month. Records without that time never match.
func (e *Engine) FilterByMonth(records []models.Consignment, month string) []models.Consignment {
	out := make([]models.Consignment, 0, len(records))
	for _, record := range records {
		if e.inMonth(record.WarehouseReceivedDateTime, month) {
			out = append(out, record)
		}
	}
	return out
}

// KPIs computes the dashboard cards for an already filtered set.
func (e *Engine) KPIs(filtered []models.Consignment) models.DashboardKPIs {
	kpis := models.DashboardKPIs{Count: len(filtered)}
	freight := decimal.Zero

	for _, record := range filtered {
		if record.Status == models.StatusDelivered {
			kpis.DeliveredCount++
		}
		if record.PaymentStatus == models.PaymentDue {
			kpis.DueCount++
		}
		freight = freight.Add(amount(record.Freight))
	}

	kpis.TotalFreight = freight.InexactFloat64()
	if kpis.Count > 0 {
		kpis.DeliveredPercent = float64(kpis.DeliveredCount) / float64(kpis.Count) * 100
	}
	return kpis
}

// Dashboard bundles the month filter, display order and KPIs.
func (e *Engine) Dashboard(records []models.Consignment, month string) models.DashboardView {
	filtered := e.Sort(e.FilterByMonth(records, month))
	return models.DashboardView{
		Month:        month,
		KPIs:         e.KPIs(filtered),
		Consignments: filtered,
	}
}

// Dues groups the Due records by consignee. Records with an empty consignee
// are skipped. Groups are ordered by amount owed, ties by first appearance.
func (e *Engine) Dues(records []models.Consignment) models.DueSummary {
	type group struct {
		name  string
		total decimal.Decimal
		count int
	}

	index := make(map[string]int)
	groups := make([]*group, 0)

	for _, record := range records {
		if record.PaymentStatus != models.PaymentDue || record.ConsigneeName == "" {
			continue
		}
		i, ok := index[record.ConsigneeName]
		if !ok {
			i = len(groups)
			index[record.ConsigneeName] = i
			groups = append(groups, &group{name: record.ConsigneeName, total: decimal.Zero})
		}
		groups[i].total = groups[i].total.Add(decimal.NewFromFloat(record.Total()))
		groups[i].count++
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].total.GreaterThan(groups[j].total)
	})

	summary := models.DueSummary{Entries: make([]models.DueEntry, 0, len(groups))}
	grand := decimal.Zero
	for _, g := range groups {
		grand = grand.Add(g.total)
		summary.Entries = append(summary.Entries, models.DueEntry{
			Name:     g.name,
			TotalDue: g.total.InexactFloat64(),
			Count:    g.count,
		})
	}
	summary.TotalDue = grand.InexactFloat64()
	return summary
}

// Accounting summarizes the collections of a month: Paid records whose
// delivering time falls in month, with totals, a per-day breakdown and a
// chart series. Records without a delivering time are never counted.
func (e *Engine) Accounting(records []models.Consignment, month string) models.AccountingSummary {
	totals := newAccumulator()
	days := make(map[int]*dayBucket)

	for _, record := range records {
		if record.PaymentStatus != models.PaymentPaid || record.DeliveringDateTime == nil {
			continue
		}
		if !e.inMonth(record.DeliveringDateTime, month) {
			continue
		}

		totals.add(record)

		delivered := record.DeliveringDateTime.In(e.loc)
		bucket, ok := days[delivered.Day()]
		if !ok {
			bucket = &dayBucket{day: delivered.Day(), date: delivered, acc: newAccumulator()}
			days[delivered.Day()] = bucket
		}
		bucket.acc.add(record)
	}

	ordered := make([]*dayBucket, 0, len(days))
	for _, bucket := range days {
		ordered = append(ordered, bucket)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].day < ordered[j].day })

	summary := models.AccountingSummary{
		Month:  month,
		Totals: totals.totals(),
		Daily:  make([]models.DailyCollection, 0, len(ordered)),
		Chart:  make([]models.ChartPoint, 0, len(ordered)),
	}
	for _, bucket := range ordered {
		dayTotals := bucket.acc.totals()
		summary.Daily = append(summary.Daily, models.DailyCollection{
			Day:              bucket.day,
			Date:             bucket.date,
			AccountingTotals: dayTotals,
		})
		summary.Chart = append(summary.Chart, models.ChartPoint{
			Name:       fmt.Sprintf("Day %d", bucket.day),
			Freight:    dayTotals.Freight,
			Charges:    dayTotals.Charges,
			StdCharges: dayTotals.StdCharges,
		})
	}
	return summary
}

func (e *Engine) inMonth(t *time.Time, month string) bool {
	if t == nil {
		return false
	}
	return e.MonthKey(*t) == month
}

type dayBucket struct {
	day  int
	date time.Time
	acc  *accumulator
}

type accumulator struct {
	freight    decimal.Decimal
	charges    decimal.Decimal
	stdCharges decimal.Decimal
}

func newAccumulator() *accumulator {
	return &accumulator{freight: decimal.Zero, charges: decimal.Zero, stdCharges: decimal.Zero}
}

func (a *accumulator) add(record models.Consignment) {
	a.freight = a.freight.Add(amount(record.Freight))
	a.charges = a.charges.Add(amount(record.Charges))
	a.stdCharges = a.stdCharges.Add(amount(record.StdCharges))
}

func (a *accumulator) totals() models.AccountingTotals {
	return models.AccountingTotals{
		Freight:    a.freight.InexactFloat64(),
		Charges:    a.charges.InexactFloat64(),
		StdCharges: a.stdCharges.InexactFloat64(),
		Total:      a.freight.Add(a.charges).Add(a.stdCharges).InexactFloat64(),
	}
}

// amount treats missing, negative or non-finite charges as zero.
func amount(v float64) decimal.Decimal {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
