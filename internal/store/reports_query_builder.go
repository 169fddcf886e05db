package store

import "strings"

type reportQueryBuilder struct {
	filter ReportFilter
	query  string
	args   []any
	where  []string
}

func buildReportListQuery(filter ReportFilter) (string, []any) {
	builder := &reportQueryBuilder{filter: filter}
	builder.buildSelect()
	builder.buildWhere()
	builder.buildOrder()
	builder.buildPagination()
	return builder.query, builder.args
}

func (b *reportQueryBuilder) buildSelect() {
	b.query = "SELECT " + reportColumns + " FROM reports"
}

func (b *reportQueryBuilder) buildWhere() {
	b.appendSearch()
	b.appendCategory()
	b.appendStatus()

	if len(b.where) == 0 {
		return
	}
	b.query += " WHERE " + strings.Join(b.where, " AND ")
}

func (b *reportQueryBuilder) buildOrder() {
	b.query += " ORDER BY created_at DESC, id DESC"
}

func (b *reportQueryBuilder) buildPagination() {
	hasLimit := false
	if b.filter.Limit > 0 {
		b.query += " LIMIT ?"
		b.args = append(b.args, b.filter.Limit)
		hasLimit = true
	}
	if b.filter.Offset > 0 {
		if !hasLimit {
			b.query += " LIMIT -1"
		}
		b.query += " OFFSET ?"
		b.args = append(b.args, b.filter.Offset)
	}
}

// appendSearch matches q as a case-insensitive substring of any text column.
func (b *reportQueryBuilder) appendSearch() {
	q := strings.TrimSpace(b.filter.Query)
	if q == "" {
		return
	}
	columns := []string{"reporter_contact", "location", "category", "description"}
	clauses := make([]string, len(columns))
	for i, column := range columns {
		clauses[i] = column + " LIKE '%' || ? || '%' ESCAPE '\\'"
		b.args = append(b.args, escapeLike(q))
	}
	b.where = append(b.where, "("+strings.Join(clauses, " OR ")+")")
}

func (b *reportQueryBuilder) appendCategory() {
	if b.filter.Category == "" {
		return
	}
	b.where = append(b.where, "category = ?")
	b.args = append(b.args, string(b.filter.Category))
}

func (b *reportQueryBuilder) appendStatus() {
	if b.filter.Status == "" {
		return
	}
	b.where = append(b.where, "status = ?")
	b.args = append(b.args, string(b.filter.Status))
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
