// Package analytics summarises consent decisions for the admin dashboard.
package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultDays = 30
	MaxDays     = 365
	topPurposes = 10
)

// Filter narrows the records considered. Status is honoured only for
// accepted, rejected and partial.
type Filter struct {
	TemplateID string
	Start      *time.Time
	End        *time.Time
	Status     string
}

func (f Filter) status() string {
	switch f.Status {
	case "accepted", "rejected", "partial":
		return f.Status
	}
	return ""
}

type Counts struct {
	Total    int `json:"total"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Partial  int `json:"partial"`
}

type Overview struct {
	TotalConsents    int     `json:"totalConsents"`
	AcceptedConsents int     `json:"acceptedConsents"`
	RejectedConsents int     `json:"rejectedConsents"`
	PartialConsents  int     `json:"partialConsents"`
	AcceptanceRate   float64 `json:"acceptanceRate"`
	TotalTemplates   int     `json:"totalTemplates"`
	ActiveTemplates  int     `json:"activeTemplates"`
}

type TemplateStat struct {
	TemplateID     string  `json:"templateId"`
	TemplateName   string  `json:"templateName"`
	TotalConsents  int     `json:"totalConsents"`
	Accepted       int     `json:"accepted"`
	Rejected       int     `json:"rejected"`
	Partial        int     `json:"partial"`
	AcceptanceRate float64 `json:"acceptanceRate"`
}

type DayStat struct {
	Date string `json:"date"`
	Counts
}

type Bucket struct {
	Key string `json:"key"`
	Counts
}

type PlatformStat struct {
	Platform string `json:"platform"`
	Counts
}

type LanguageStat struct {
	Language string `json:"language"`
	Counts
}

type BrowserStat struct {
	Browser string `json:"browser"`
	Counts
}

type PurposeStat struct {
	PurposeID string `json:"purposeId"`
	Count     int    `json:"count"`
}

type Report struct {
	Overview      Overview       `json:"overview"`
	TemplateStats []TemplateStat `json:"templateStats"`
	DailyStats    []DayStat      `json:"dailyStats"`
	PlatformStats []PlatformStat `json:"platformStats"`
	LanguageStats []LanguageStat `json:"languageStats"`
	BrowserStats  []BrowserStat  `json:"browserStats"`
	PurposeStats  []PurposeStat  `json:"purposeStats"`
}

type Dimension string

const (
	ByPlatform Dimension = "platform"
	ByLanguage Dimension = "language"
	ByBrowser  Dimension = "browser"
)

// Source answers the individual aggregate queries.
type Source interface {
	Totals(ctx context.Context, f Filter) (Counts, error)
	TemplateCounts(ctx context.Context) (total, active int, err error)
	PerTemplate(ctx context.Context, f Filter) ([]TemplateStat, error)
	PerDay(ctx context.Context, f Filter, from, to time.Time) ([]DayStat, error)
	Breakdown(ctx context.Context, f Filter, dim Dimension) ([]Bucket, error)
	PurposeCounts(ctx context.Context, f Filter, limit int) ([]PurposeStat, error)
}

type Service struct {
	source Source
	now    func() time.Time
}

func NewService(source Source) *Service {
	return &Service{source: source, now: time.Now}
}

// Consent builds the dashboard report. Each aggregate runs concurrently;
// the first failure cancels the rest.
func (s *Service) Consent(ctx context.Context, f Filter, days int) (Report, error) {
	if days <= 0 {
		days = DefaultDays
	}
	if days > MaxDays {
		days = MaxDays
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -(days - 1))
	to := today.AddDate(0, 0, 1)

	var (
		report    Report
		totals    Counts
		perDay    []DayStat
		platforms []Bucket
		languages []Bucket
		browsers  []Bucket
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		totals, err = s.source.Totals(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		report.Overview.TotalTemplates, report.Overview.ActiveTemplates, err = s.source.TemplateCounts(gctx)
		return err
	})
	g.Go(func() (err error) {
		report.TemplateStats, err = s.source.PerTemplate(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		perDay, err = s.source.PerDay(gctx, f, from, to)
		return err
	})
	g.Go(func() (err error) {
		platforms, err = s.source.Breakdown(gctx, f, ByPlatform)
		return err
	})
	g.Go(func() (err error) {
		languages, err = s.source.Breakdown(gctx, f, ByLanguage)
		return err
	})
	g.Go(func() (err error) {
		browsers, err = s.source.Breakdown(gctx, f, ByBrowser)
		return err
	})
	g.Go(func() (err error) {
		report.PurposeStats, err = s.source.PurposeCounts(gctx, f, topPurposes)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report.Overview.TotalConsents = totals.Total
	report.Overview.AcceptedConsents = totals.Accepted
	report.Overview.RejectedConsents = totals.Rejected
	report.Overview.PartialConsents = totals.Partial
	report.Overview.AcceptanceRate = Rate(totals.Accepted, totals.Total)

	if report.TemplateStats == nil {
		report.TemplateStats = []TemplateStat{}
	}
	for i := range report.TemplateStats {
		ts := &report.TemplateStats[i]
		ts.AcceptanceRate = Rate(ts.Accepted, ts.TotalConsents)
	}
	report.DailyStats = fillDays(perDay, from, days)

	report.PlatformStats = make([]PlatformStat, 0, len(platforms))
	for _, b := range sortBuckets(platforms) {
		report.PlatformStats = append(report.PlatformStats, PlatformStat{Platform: b.Key, Counts: b.Counts})
	}
	report.LanguageStats = make([]LanguageStat, 0, len(languages))
	for _, b := range sortBuckets(languages) {
		report.LanguageStats = append(report.LanguageStats, LanguageStat{Language: b.Key, Counts: b.Counts})
	}
	report.BrowserStats = make([]BrowserStat, 0, len(browsers))
	for _, b := range sortBuckets(browsers) {
		report.BrowserStats = append(report.BrowserStats, BrowserStat{Browser: b.Key, Counts: b.Counts})
	}
	if report.PurposeStats == nil {
		report.PurposeStats = []PurposeStat{}
	}
	return report, nil
}

// Rate is part/total as a percentage rounded to two decimals.
func Rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*100*100) / 100
}

// fillDays returns one entry per day from the first day, oldest first,
// with zero counts where nothing was recorded.
func fillDays(stats []DayStat, from time.Time, days int) []DayStat {
	byDate := make(map[string]Counts, len(stats))
	for _, d := range stats {
		byDate[d.Date] = d.Counts
	}
	out := make([]DayStat, 0, days)
	for i := 0; i < days; i++ {
		date := from.AddDate(0, 0, i).Format("2006-01-02")
		out = append(out, DayStat{Date: date, Counts: byDate[date]})
	}
	return out
}

func sortBuckets(in []Bucket) []Bucket {
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Total != in[j].Total {
			return in[i].Total > in[j].Total
		}
		return in[i].Key < in[j].Key
	})
	return in
}
