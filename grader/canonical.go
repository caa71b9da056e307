package grader

import (
	"fmt"
	"sort"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"
)

func newParser() (*sqlparser.Parser, error) {
	return sqlparser.New(sqlparser.Options{
		TruncateUILen:  512,
		TruncateErrLen: 1024,
	})
}

func parseStatement(sql string) (sqlparser.Statement, error) {
	p, err := newParser()
	if err != nil {
		return nil, err
	}
	return p.Parse(sql)
}

// CanonicalOptions relaxes the parts of a structural comparison that a
// question may not care about.
type CanonicalOptions struct {
	// IgnoreSelectOrder sorts the projected column list before diffing.
	IgnoreSelectOrder bool
	// IgnoreOrderBy clears ORDER BY on both sides before diffing.
	IgnoreOrderBy bool
}

// Canonical is the dialect-agnostic, alias-stripped shape of one parsed
// statement. Each kind exposes an ordered facet list so a single diff
// routine serves all of them.
type Canonical interface {
	StatementKind() Kind
	Facets() []Facet
	// FieldCount is the fixed divisor used when turning issue counts into
	// a 0-100 score: 7 for SELECT, 2 for INSERT, 5 for UPDATE and DELETE.
	FieldCount() int
}

type SelectStructure struct {
	Columns []string
	Tables  []string
	Joins   []string
	Where   string
	Having  string
	GroupBy []string
	OrderBy []string
}

func (s *SelectStructure) StatementKind() Kind { return KindSelect }
func (s *SelectStructure) FieldCount() int     { return 7 }

func (s *SelectStructure) Facets() []Facet {
	return []Facet{
		{"columns", joinList(s.Columns)},
		{"tables", joinList(s.Tables)},
		{"joins", joinList(s.Joins)},
		{"where", s.Where},
		{"having", s.Having},
		{"groupBy", joinList(s.GroupBy)},
		{"orderBy", joinList(s.OrderBy)},
	}
}

type InsertStructure struct {
	Table   string
	Columns []string
	// Values is carried for diagnostics; value correctness is judged by the
	// mutation checker, not the structural diff.
	Values []string
}

func (s *InsertStructure) StatementKind() Kind { return KindInsert }
func (s *InsertStructure) FieldCount() int     { return 2 }

func (s *InsertStructure) Facets() []Facet {
	return []Facet{
		{"table", s.Table},
		{"columns", joinList(s.Columns)},
	}
}

type UpdateStructure struct {
	Table   string
	Set     []string
	Where   string
	OrderBy string
	Limit   string
}

func (s *UpdateStructure) StatementKind() Kind { return KindUpdate }
func (s *UpdateStructure) FieldCount() int     { return 5 }

func (s *UpdateStructure) Facets() []Facet {
	return []Facet{
		{"table", s.Table},
		{"set", joinList(s.Set)},
		{"where", s.Where},
		{"orderBy", s.OrderBy},
		{"limit", s.Limit},
	}
}

type DeleteStructure struct {
	Table   string
	Where   string
	OrderBy string
	Limit   string
}

func (s *DeleteStructure) StatementKind() Kind { return KindDelete }
func (s *DeleteStructure) FieldCount() int     { return 5 }

func (s *DeleteStructure) Facets() []Facet {
	return []Facet{
		{"table", s.Table},
		{"where", s.Where},
		{"orderBy", s.OrderBy},
		{"limit", s.Limit},
	}
}

// Canonicalize reduces a parsed statement to its comparable shape.
func Canonicalize(stmt sqlparser.Statement, opts CanonicalOptions) (Canonical, error) {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return canonSelect(s, opts), nil
	case *sqlparser.Insert:
		return canonInsert(s), nil
	case *sqlparser.Update:
		return canonUpdate(s), nil
	case *sqlparser.Delete:
		return canonDelete(s), nil
	default:
		return nil, fmt.Errorf("statement kind %T is not comparable", stmt)
	}
}

func canonSelect(sel *sqlparser.Select, opts CanonicalOptions) *SelectStructure {
	var cols []string
	for _, se := range sel.GetColumns() {
		switch e := se.(type) {
		case *sqlparser.StarExpr:
			cols = append(cols, "*")
		case *sqlparser.AliasedExpr:
			cols = append(cols, canonSelectExpr(e.Expr))
		default:
			cols = append(cols, "EXPR:"+sqlparser.String(se))
		}
	}
	if opts.IgnoreSelectOrder {
		sort.Strings(cols)
	}

	tables, joins := collectTables(sel.GetFrom())

	return &SelectStructure{
		Columns: cols,
		Tables:  tables,
		Joins:   joins,
		Where:   whereString(sel.Where),
		Having:  whereString(sel.Having),
		GroupBy: canonGroupBy(sel.GroupBy),
		OrderBy: canonOrderBy(sel.OrderBy, opts.IgnoreOrderBy),
	}
}

func canonInsert(ins *sqlparser.Insert) *InsertStructure {
	s := &InsertStructure{Table: firstTableName(ins.Table)}
	for _, c := range ins.Columns {
		s.Columns = append(s.Columns, c.String())
	}
	switch rows := ins.Rows.(type) {
	case sqlparser.Values:
		for _, tuple := range rows {
			vals := make([]string, 0, len(tuple))
			for _, e := range tuple {
				vals = append(vals, sqlparser.String(e))
			}
			s.Values = append(s.Values, "("+strings.Join(vals, ", ")+")")
		}
	default:
		if rows != nil {
			s.Values = append(s.Values, sqlparser.String(rows))
		}
	}
	return s
}

func canonUpdate(upd *sqlparser.Update) *UpdateStructure {
	var set []string
	for _, ue := range upd.Exprs {
		set = append(set, sqlparser.String(ue))
	}
	return &UpdateStructure{
		Table:   firstTableName(sqlparser.TableExprs(upd.TableExprs)),
		Set:     set,
		Where:   whereString(upd.Where),
		OrderBy: orderByString(upd.OrderBy),
		Limit:   limitString(upd.Limit),
	}
}

func canonDelete(del *sqlparser.Delete) *DeleteStructure {
	return &DeleteStructure{
		Table:   firstTableName(sqlparser.TableExprs(del.TableExprs)),
		Where:   whereString(del.Where),
		OrderBy: orderByString(del.OrderBy),
		Limit:   limitString(del.Limit),
	}
}

// canonSelectExpr strips table qualifiers so a.id and b.id canonicalize
// identically; aggregates become FUNC:NAME(arg) signatures.
func canonSelectExpr(expr sqlparser.Expr) string {
	switch e := expr.(type) {
	case *sqlparser.ColName:
		return e.Name.String()
	case sqlparser.AggrFunc:
		return canonAggr(e)
	default:
		return "EXPR:" + sqlparser.String(expr)
	}
}

func canonAggr(agg sqlparser.AggrFunc) string {
	arg := "*"
	if a := agg.GetArg(); a != nil {
		if col, ok := a.(*sqlparser.ColName); ok {
			arg = col.Name.String()
		} else {
			arg = sqlparser.String(a)
		}
	}
	return fmt.Sprintf("FUNC:%s(%s)", strings.ToUpper(agg.AggrName()), arg)
}

// collectTables gathers the referenced table/alias set and the join list
// from a FROM clause, descending into nested join trees.
func collectTables(exprs []sqlparser.TableExpr) (tables, joins []string) {
	var walk func(te sqlparser.TableExpr)
	walk = func(te sqlparser.TableExpr) {
		switch t := te.(type) {
		case *sqlparser.AliasedTableExpr:
			if tn, ok := t.Expr.(sqlparser.TableName); ok {
				tables = append(tables, tn.Name.String())
			}
			if !t.As.IsEmpty() {
				tables = append(tables, t.As.String())
			}
		case *sqlparser.JoinTableExpr:
			walk(t.LeftExpr)
			walk(t.RightExpr)
			joins = append(joins, canonJoin(t))
		case *sqlparser.ParenTableExpr:
			for _, inner := range t.Exprs {
				walk(inner)
			}
		}
	}
	for _, te := range exprs {
		walk(te)
	}

	sort.Strings(tables)
	tables = dedupe(tables)
	sort.Strings(joins)
	return tables, joins
}

func canonJoin(j *sqlparser.JoinTableExpr) string {
	table := ""
	if at, ok := j.RightExpr.(*sqlparser.AliasedTableExpr); ok {
		if tn, ok := at.Expr.(sqlparser.TableName); ok {
			table = tn.Name.String()
		}
	}
	on := ""
	if j.Condition != nil && j.Condition.On != nil {
		on = sqlparser.String(j.Condition.On)
	}
	return fmt.Sprintf("%s|%s|%s", j.Join.ToString(), table, on)
}

// canonGroupBy collects the grouped column names as a sorted set. Grouping
// by expressions reduces to the columns the expression mentions.
func canonGroupBy(node sqlparser.SQLNode) []string {
	var cols []string
	_ = sqlparser.Walk(func(n sqlparser.SQLNode) (bool, error) {
		if col, ok := n.(*sqlparser.ColName); ok {
			cols = append(cols, col.Name.String())
		}
		return true, nil
	}, node)
	sort.Strings(cols)
	return cols
}

func canonOrderBy(orderBy sqlparser.OrderBy, ignore bool) []string {
	if ignore {
		return nil
	}
	var list []string
	for _, o := range orderBy {
		key := ""
		if col, ok := o.Expr.(*sqlparser.ColName); ok {
			key = col.Name.String()
		} else {
			key = "EXPR:" + sqlparser.String(o.Expr)
		}
		list = append(list, key+":"+strings.ToUpper(o.Direction.ToString()))
	}
	return list
}

func firstTableName(node sqlparser.SQLNode) string {
	var name string
	_ = sqlparser.Walk(func(n sqlparser.SQLNode) (bool, error) {
		if tn, ok := n.(sqlparser.TableName); ok && name == "" {
			name = tn.Name.String()
			return false, nil
		}
		return true, nil
	}, node)
	return name
}

func whereString(w *sqlparser.Where) string {
	if w == nil {
		return ""
	}
	return sqlparser.String(w.Expr)
}

func orderByString(ob sqlparser.OrderBy) string {
	if len(ob) == 0 {
		return ""
	}
	return strings.TrimSpace(sqlparser.String(ob))
}

func limitString(l *sqlparser.Limit) string {
	if l == nil {
		return ""
	}
	return strings.TrimSpace(sqlparser.String(l))
}

func joinList(items []string) string {
	return strings.Join(items, ", ")
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || sorted[i-1] != s {
			out = append(out, s)
		}
	}
	return out
}
