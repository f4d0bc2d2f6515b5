package orders

import (
	"context"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
	"github.com/angelmondragon/gogift-backend/pkg/pagination"
)

// ListSalesForEnterprise pages the enterprise's approved lines. Year and
// Month select a purchase window in UTC.
func (s *Service) ListSalesForEnterprise(ctx context.Context, q SalesQuery) (*SalesPage, error) {
	if q.EnterpriseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotAuthorized, "enterprise context required")
	}
	filter, err := salesFilter(q)
	if err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(q.Page.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(q.Page.Limit)
	rows, err := s.repo.ListSales(ctx, filter, cursor, limit+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list sales")
	}

	page := &SalesPage{Items: make([]SaleView, 0, len(rows))}
	if len(rows) > limit {
		last := rows[limit-1]
		page.Cursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.PurchasedAt, ID: last.LineID})
		rows = rows[:limit]
	}
	for _, row := range rows {
		page.Items = append(page.Items, toSaleView(row))
	}
	return page, nil
}

func salesFilter(q SalesQuery) (SalesFilter, error) {
	filter := SalesFilter{EnterpriseID: q.EnterpriseID, ListingID: q.ListingID}
	switch {
	case q.Month != 0 && q.Year == 0:
		return SalesFilter{}, pkgerrors.New(pkgerrors.CodeValidation, "month filter requires a year")
	case q.Month < 0 || q.Month > 12:
		return SalesFilter{}, pkgerrors.New(pkgerrors.CodeValidation, "month must be between 1 and 12")
	case q.Year < 0:
		return SalesFilter{}, pkgerrors.New(pkgerrors.CodeValidation, "year must be positive")
	case q.Month != 0:
		filter.From = time.Date(q.Year, time.Month(q.Month), 1, 0, 0, 0, 0, time.UTC)
		filter.Until = filter.From.AddDate(0, 1, 0)
	case q.Year != 0:
		filter.From = time.Date(q.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		filter.Until = filter.From.AddDate(1, 0, 0)
	}
	return filter, nil
}
