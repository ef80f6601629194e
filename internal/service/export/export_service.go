package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/consignments/internal/domain/models"
	"github.com/mamadbah2/consignments/internal/repository/sheets"
	"github.com/mamadbah2/consignments/internal/service/reporting"
)

const (
	// AccountsRange receives one row per owner and collection day.
	AccountsRange = "Accounts!A:H"
	exportedRange = "Accounts!A:B"
	maxParallel   = 4
)

// RecordSource lists records across owners.
type RecordSource interface {
	Owners(ctx context.Context) ([]string, error)
	List(ctx context.Context, ownerID string) ([]models.Consignment, error)
}

// Service copies monthly accounting summaries into a spreadsheet.
type Service struct {
	source RecordSource
	sheet  sheets.Repository
	engine *reporting.Engine
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires the accounting export.
func NewService(source RecordSource, sheet sheets.Repository, engine *reporting.Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, sheet: sheet, engine: engine, logger: logger, now: time.Now}
}

// ExportPreviousMonth exports the month before the current one.
func (s *Service) ExportPreviousMonth(ctx context.Context) (int, error) {
	now := s.now().In(s.engine.Location())
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return s.ExportMonth(ctx, s.engine.MonthKey(first.AddDate(0, -1, 0)))
}

// ExportMonth appends the per-day collections of month for every owner not
// yet exported for that month, and returns the number of rows written.
func (s *Service) ExportMonth(ctx context.Context, month string) (int, error) {
	month, err := reporting.ParseMonthKey(month)
	if err != nil {
		return 0, err
	}

	done, err := s.exported(ctx, month)
	if err != nil {
		return 0, err
	}

	owners, err := s.source.Owners(ctx)
	if err != nil {
		return 0, fmt.Errorf("list owners: %w", err)
	}
	sort.Strings(owners)

	pending := owners[:0:0]
	for _, owner := range owners {
		if !done[owner] {
			pending = append(pending, owner)
		}
	}

	summaries := make([]models.AccountingSummary, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, owner := range pending {
		i, owner := i, owner
		g.Go(func() error {
			records, err := s.source.List(gctx, owner)
			if err != nil {
				return fmt.Errorf("list records of %s: %w", owner, err)
			}
			summaries[i] = s.engine.Accounting(records, month)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	exportedAt := s.now().UTC().Format(time.RFC3339)
	var rows [][]interface{}
	for i, owner := range pending {
		for _, day := range summaries[i].Daily {
			rows = append(rows, []interface{}{
				month,
				owner,
				day.Date.In(s.engine.Location()).Format("2006-01-02"),
				day.Freight,
				day.Charges,
				day.StdCharges,
				day.Total,
				exportedAt,
			})
		}
	}

	if err := s.sheet.AppendRows(ctx, AccountsRange, rows); err != nil {
		return 0, err
	}

	s.logger.Info("accounting exported",
		zap.String("month", month),
		zap.Int("owners", len(pending)),
		zap.Int("rows", len(rows)))
	return len(rows), nil
}

// exported returns the owners that already have rows for month.
func (s *Service) exported(ctx context.Context, month string) (map[string]bool, error) {
	values, err := s.sheet.ReadRange(ctx, exportedRange)
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool)
	for _, row := range values {
		if len(row) < 2 {
			continue
		}
		if fmt.Sprint(row[0]) == month {
			done[fmt.Sprint(row[1])] = true
		}
	}
	return done, nil
}
