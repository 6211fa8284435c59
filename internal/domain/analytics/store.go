package analytics

import (
	"context"
	"fmt"
	"time"

	"dpdp/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

const countColumns = `COUNT(r.id),
  COUNT(r.id) FILTER (WHERE r.status = 'accepted'),
  COUNT(r.id) FILTER (WHERE r.status = 'rejected'),
  COUNT(r.id) FILTER (WHERE r.status = 'partial')`

// recordConditions renders the filter as AND-joined predicates on alias r,
// numbering placeholders after the given args.
func recordConditions(f Filter, args []any) (string, []any) {
	cond := ""
	add := func(expr string, value any) {
		args = append(args, value)
		cond += fmt.Sprintf(" AND "+expr, len(args))
	}
	if f.TemplateID != "" {
		add("r.template_id = $%d", f.TemplateID)
	}
	if f.Start != nil {
		add("r.consent_timestamp >= $%d", *f.Start)
	}
	if f.End != nil {
		add("r.consent_timestamp <= $%d", *f.End)
	}
	if st := f.status(); st != "" {
		add("r.status = $%d", st)
	}
	return cond, args
}

func (s *Store) Totals(ctx context.Context, f Filter) (Counts, error) {
	cond, args := recordConditions(f, nil)
	var c Counts
	err := s.DB.QueryRow(ctx, "SELECT "+countColumns+" FROM consent_records r WHERE true"+cond, args...).
		Scan(&c.Total, &c.Accepted, &c.Rejected, &c.Partial)
	return c, err
}

func (s *Store) TemplateCounts(ctx context.Context) (int, int, error) {
	var total, active int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'active') FROM consent_templates`).Scan(&total, &active)
	return total, active, err
}

func (s *Store) PerTemplate(ctx context.Context, f Filter) ([]TemplateStat, error) {
	cond, args := recordConditions(f, nil)
	rows, err := s.DB.Query(ctx, "SELECT t.id, t.name, "+countColumns+`
    FROM consent_templates t
    LEFT JOIN consent_records r ON r.template_id = t.id`+cond+`
    GROUP BY t.id, t.name
    ORDER BY t.name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []TemplateStat{}
	for rows.Next() {
		var ts TemplateStat
		if err := rows.Scan(&ts.TemplateID, &ts.TemplateName, &ts.TotalConsents, &ts.Accepted, &ts.Rejected, &ts.Partial); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (s *Store) PerDay(ctx context.Context, f Filter, from, to time.Time) ([]DayStat, error) {
	cond, args := recordConditions(f, []any{from, to})
	rows, err := s.DB.Query(ctx, `
    SELECT to_char(r.consent_timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, `+countColumns+`
    FROM consent_records r
    WHERE r.consent_timestamp >= $1 AND r.consent_timestamp < $2`+cond+`
    GROUP BY day
    ORDER BY day`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []DayStat{}
	for rows.Next() {
		var d DayStat
		if err := rows.Scan(&d.Date, &d.Total, &d.Accepted, &d.Rejected, &d.Partial); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

var dimensionColumns = map[Dimension]string{
	ByPlatform: "r.platform",
	ByLanguage: "r.language",
	ByBrowser:  "r.browser",
}

func (s *Store) Breakdown(ctx context.Context, f Filter, dim Dimension) ([]Bucket, error) {
	column, ok := dimensionColumns[dim]
	if !ok {
		return nil, fmt.Errorf("unknown analytics dimension %q", dim)
	}
	cond, args := recordConditions(f, nil)
	rows, err := s.DB.Query(ctx, "SELECT "+column+", "+countColumns+`
    FROM consent_records r
    WHERE true`+cond+`
    GROUP BY `+column, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Bucket{}
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Key, &b.Total, &b.Accepted, &b.Rejected, &b.Partial); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) PurposeCounts(ctx context.Context, f Filter, limit int) ([]PurposeStat, error) {
	cond, args := recordConditions(f, nil)
	args = append(args, limit)
	rows, err := s.DB.Query(ctx, `
    SELECT p.purpose_id, COUNT(*) AS n
    FROM consent_records r
    CROSS JOIN LATERAL unnest(r.accepted_purposes) AS p(purpose_id)
    WHERE true`+cond+fmt.Sprintf(`
    GROUP BY p.purpose_id
    ORDER BY n DESC, p.purpose_id
    LIMIT $%d`, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PurposeStat{}
	for rows.Next() {
		var p PurposeStat
		if err := rows.Scan(&p.PurposeID, &p.Count); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
