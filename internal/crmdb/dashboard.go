package crmdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/JonMunkholm/CrmAssist/internal/query"
)

var ErrUnknownEntity = errors.New("unknown CRM entity")

// Dashboard runs the fixed reporting queries behind the stats and overview
// endpoints.
type Dashboard struct {
	db *sql.DB
}

func NewDashboard(db *sql.DB) *Dashboard {
	return &Dashboard{db: db}
}

type CustomerStats struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

type DealStats struct {
	Total          int64   `json:"total"`
	TotalValue     float64 `json:"total_value"`
	AvgProbability float64 `json:"avg_probability"`
}

type ProjectStats struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

type ConsultantStats struct {
	Total   int64   `json:"total"`
	AvgRate float64 `json:"avg_rate"`
}

type Stats struct {
	Customers   CustomerStats   `json:"customers"`
	Deals       DealStats       `json:"deals"`
	Projects    ProjectStats    `json:"projects"`
	Consultants ConsultantStats `json:"consultants"`
}

type Overview struct {
	RecentActivities []query.Row `json:"recent_activities"`
	TopDeals         []query.Row `json:"top_deals"`
	ProjectStatus    []query.Row `json:"project_status"`
}

const (
	customerStatsSQL   = `SELECT COUNT(*), COUNT(CASE WHEN status = 'Active' THEN 1 END) FROM customers`
	dealStatsSQL       = `SELECT COUNT(*), COALESCE(SUM(value), 0), COALESCE(AVG(probability), 0) FROM deals WHERE stage NOT IN ('Closed Won', 'Closed Lost')`
	projectStatsSQL    = `SELECT COUNT(*), COUNT(CASE WHEN status = 'In Progress' THEN 1 END) FROM projects`
	consultantStatsSQL = `SELECT COUNT(*), COALESCE(AVG(hourly_rate), 0) FROM consultants WHERE status = 'Active'`

	recentActivitiesSQL = `SELECT a.type, a.subject, a.activity_date, c.company_name
FROM activities a
LEFT JOIN customers c ON a.customer_id = c.id
ORDER BY a.activity_date DESC
LIMIT 5`
	topDealsSQL = `SELECT d.title, d.value, d.stage, c.company_name
FROM deals d
LEFT JOIN customers c ON d.customer_id = c.id
WHERE d.stage NOT IN ('Closed Won', 'Closed Lost')
ORDER BY d.value DESC
LIMIT 5`
	projectStatusSQL = `SELECT status, COUNT(*) AS count FROM projects GROUP BY status ORDER BY status`
)

func (d *Dashboard) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := d.db.QueryRowContext(ctx, customerStatsSQL).Scan(&s.Customers.Total, &s.Customers.Active); err != nil {
		return Stats{}, fmt.Errorf("customer stats: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, dealStatsSQL).Scan(&s.Deals.Total, &s.Deals.TotalValue, &s.Deals.AvgProbability); err != nil {
		return Stats{}, fmt.Errorf("deal stats: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, projectStatsSQL).Scan(&s.Projects.Total, &s.Projects.Active); err != nil {
		return Stats{}, fmt.Errorf("project stats: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, consultantStatsSQL).Scan(&s.Consultants.Total, &s.Consultants.AvgRate); err != nil {
		return Stats{}, fmt.Errorf("consultant stats: %w", err)
	}
	return s, nil
}

func (d *Dashboard) Overview(ctx context.Context) (Overview, error) {
	recent, err := d.rows(ctx, recentActivitiesSQL)
	if err != nil {
		return Overview{}, fmt.Errorf("recent activities: %w", err)
	}
	deals, err := d.rows(ctx, topDealsSQL)
	if err != nil {
		return Overview{}, fmt.Errorf("top deals: %w", err)
	}
	status, err := d.rows(ctx, projectStatusSQL)
	if err != nil {
		return Overview{}, fmt.Errorf("project status: %w", err)
	}
	return Overview{RecentActivities: recent, TopDeals: deals, ProjectStatus: status}, nil
}

// CustomerCount backs the health probe.
func (d *Dashboard) CustomerCount(ctx context.Context) (int64, error) {
	var n int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Listing is one entity page: its rows plus a single summary row.
type Listing struct {
	Entity string      `json:"entity"`
	Rows   []query.Row `json:"rows"`
	Stats  query.Row   `json:"stats"`
}

type entityQueries struct {
	list  string
	stats string
}

var entities = map[string]entityQueries{
	"customers": {
		list: `SELECT c.*,
       (SELECT COUNT(*) FROM deals d WHERE d.customer_id = c.id) AS deal_count,
       (SELECT COALESCE(SUM(d.value), 0) FROM deals d WHERE d.customer_id = c.id) AS total_deal_value,
       (SELECT COUNT(*) FROM projects p WHERE p.customer_id = c.id) AS project_count
FROM customers c
ORDER BY c.company_name`,
		stats: `SELECT COUNT(*) AS total,
       COUNT(CASE WHEN status = 'Active' THEN 1 END) AS active,
       COALESCE(SUM(total_value), 0) AS total_value
FROM customers`,
	},
	"deals": {
		list: `SELECT d.*, c.company_name AS customer_name, co.name AS consultant_name
FROM deals d
LEFT JOIN customers c ON d.customer_id = c.id
LEFT JOIN consultants co ON d.assigned_consultant_id = co.id
ORDER BY d.value DESC`,
		stats: `SELECT COUNT(*) AS total,
       COALESCE(SUM(value), 0) AS total_value,
       COUNT(CASE WHEN stage = 'Closed Won' THEN 1 END) AS won,
       COALESCE(SUM(CASE WHEN stage NOT IN ('Closed Won', 'Closed Lost') THEN value ELSE 0 END), 0) AS pipeline_value
FROM deals`,
	},
	"projects": {
		list: `SELECT p.*, c.company_name AS customer_name,
       (SELECT COUNT(*) FROM project_consultants pc WHERE pc.project_id = p.id) AS consultant_count
FROM projects p
LEFT JOIN customers c ON p.customer_id = c.id
ORDER BY p.start_date DESC`,
		stats: `SELECT COUNT(*) AS total,
       COUNT(CASE WHEN status = 'In Progress' THEN 1 END) AS active,
       COALESCE(SUM(budget), 0) AS total_budget,
       COALESCE(AVG(budget), 0) AS avg_budget
FROM projects`,
	},
	"consultants": {
		list: `SELECT c.*,
       (SELECT COUNT(*) FROM project_consultants pc WHERE pc.consultant_id = c.id) AS project_count
FROM consultants c
ORDER BY c.name`,
		stats: `SELECT COUNT(*) AS total_consultants,
       COUNT(CASE WHEN status = 'Active' THEN 1 END) AS active_consultants,
       COALESCE(AVG(hourly_rate), 0) AS avg_rate,
       (SELECT COUNT(*) FROM project_consultants) AS total_projects
FROM consultants`,
	},
	"activities": {
		list: `SELECT a.*, c.company_name AS customer_name, co.name AS consultant_name
FROM activities a
LEFT JOIN customers c ON a.customer_id = c.id
LEFT JOIN consultants co ON a.consultant_id = co.id
ORDER BY a.activity_date DESC`,
		stats: `SELECT COUNT(*) AS total_activities,
       COUNT(CASE WHEN type IN ('Meeting', 'Call') THEN 1 END) AS meetings_calls,
       COUNT(CASE WHEN outcome = 'Follow-up needed' THEN 1 END) AS follow_ups
FROM activities`,
	},
}

// Entities lists the names accepted by List.
func Entities() []string {
	return []string{"customers", "deals", "projects", "consultants", "activities"}
}

func (d *Dashboard) List(ctx context.Context, entity string) (Listing, error) {
	q, ok := entities[entity]
	if !ok {
		return Listing{}, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	rows, err := d.rows(ctx, q.list)
	if err != nil {
		return Listing{}, fmt.Errorf("list %s: %w", entity, err)
	}
	stats, err := d.rows(ctx, q.stats)
	if err != nil {
		return Listing{}, fmt.Errorf("%s stats: %w", entity, err)
	}
	listing := Listing{Entity: entity, Rows: rows, Stats: query.Row{}}
	if len(stats) > 0 {
		listing.Stats = stats[0]
	}
	return listing, nil
}

func (d *Dashboard) rows(ctx context.Context, stmt string) ([]query.Row, error) {
	rows, err := d.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result, err := collect(rows)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}
