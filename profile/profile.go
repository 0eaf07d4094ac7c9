// Package profile generates static profiling reports for materialized
// tables. The core only hands it a read-only view of the table; the report
// itself is an opaque artifact cached on disk next to the database.
package profile

import (
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/opendatateam/csvapi"
)

// Generator produces one HTML report per identity and caches it.
type Generator struct {
	store *csvapi.Store
}

// NewGenerator returns a Generator reading from the store.
func NewGenerator(store *csvapi.Store) *Generator {
	return &Generator{store: store}
}

// ReportPath is where the report artifact for an identity lives.
func (g *Generator) ReportPath(identity string) string {
	return filepath.Join(g.store.RootDir(), identity+".html")
}

// Generate writes the report for an identity unless a cached artifact
// already exists, and returns the artifact path. Returns
// csvapi.ErrNotFound when the identity has no materialized table.
func (g *Generator) Generate(ctx context.Context, identity string) (string, error) {
	path := g.ReportPath(identity)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	report, err := g.buildReport(ctx, identity)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	if err := reportTemplate.Execute(f, report); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("render report: %w", err)
	}
	return path, nil
}

// columnStats is one column's summary in the report.
type columnStats struct {
	Name     string
	Type     string
	Nulls    int64
	Distinct int64
}

type report struct {
	Identity string
	RowCount int64
	Columns  []columnStats
}

// buildReport computes per-column statistics over the stored table.
func (g *Generator) buildReport(ctx context.Context, identity string) (*report, error) {
	columns, err := g.store.Columns(ctx, identity)
	if err != nil {
		return nil, err
	}

	db, err := g.store.OpenRead(identity)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rep := &report{Identity: identity}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "data"`).Scan(&rep.RowCount); err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}

	for _, col := range columns {
		quoted := quote(col.Name)
		stats := columnStats{Name: col.Name, Type: col.Type.String()}

		q := fmt.Sprintf(`SELECT COUNT(*) - COUNT(%s), COUNT(DISTINCT %s) FROM "data"`, quoted, quoted)
		if err := db.QueryRowContext(ctx, q).Scan(&stats.Nulls, &stats.Distinct); err != nil {
			return nil, fmt.Errorf("profile column %s: %w", col.Name, err)
		}
		rep.Columns = append(rep.Columns, stats)
	}
	return rep, nil
}

// quote doubles embedded quotes in an identifier.
func quote(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '"')
	for i := 0; i < len(name); i++ {
		if name[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, name[i])
	}
	return string(append(out, '"'))
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Profile {{.Identity}}</title></head>
<body>
<h1>Table profile</h1>
<p>{{.RowCount}} rows</p>
<table border="1">
<tr><th>column</th><th>type</th><th>nulls</th><th>distinct</th></tr>
{{range .Columns}}<tr><td>{{.Name}}</td><td>{{.Type}}</td><td>{{.Nulls}}</td><td>{{.Distinct}}</td></tr>
{{end}}</table>
</body>
</html>
`))
