package sqlstore

import (
	"fmt"
	"strings"

	"github.com/mirkwood-lang/mirkwood/internal/filter"
)

// Condition is a single column predicate
type Condition struct {
	Column   string
	Operator filter.Operator
	Value    interface{}
	Values   []interface{}
	// Flags holds regular expression flags; "i" also makes LIKE case insensitive
	Flags string
}

// PredicateGroup joins conditions and nested groups with AND or OR. A
// negated group renders as (...) IS NOT TRUE so that NULL comparisons inside
// it count as false.
type PredicateGroup struct {
	Conditions []*Condition
	Groups     []*PredicateGroup
	Or         bool
	Not        bool
}

// NewPredicateGroup creates an empty group
func NewPredicateGroup(or bool) *PredicateGroup {
	return &PredicateGroup{Or: or}
}

// AddCondition adds a condition to the group
func (pg *PredicateGroup) AddCondition(cond *Condition) {
	pg.Conditions = append(pg.Conditions, cond)
}

// AddGroup adds a nested group
func (pg *PredicateGroup) AddGroup(group *PredicateGroup) {
	pg.Groups = append(pg.Groups, group)
}

// IsEmpty returns true if the group holds neither conditions nor groups
func (pg *PredicateGroup) IsEmpty() bool {
	return pg == nil || (len(pg.Conditions) == 0 && len(pg.Groups) == 0)
}

// binder collects bind arguments and hands out placeholders
type binder struct {
	dialect Dialect
	args    []interface{}
}

func (b *binder) bind(v interface{}) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

const (
	sqlTrue  = "1 = 1"
	sqlFalse = "1 = 0"
)

// toSQL renders the group; an empty group renders as a tautology
func (pg *PredicateGroup) toSQL(b *binder) (string, error) {
	parts := make([]string, 0, len(pg.Conditions)+len(pg.Groups))

	for _, cond := range pg.Conditions {
		sql, err := conditionToSQL(cond, b)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}

	for _, group := range pg.Groups {
		sql, err := group.toSQL(b)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+sql+")")
	}

	var sql string
	switch {
	case len(parts) == 0:
		sql = sqlTrue
	case pg.Or:
		sql = strings.Join(parts, " OR ")
	default:
		sql = strings.Join(parts, " AND ")
	}

	if pg.Not {
		return fmt.Sprintf("(%s) IS NOT TRUE", sql), nil
	}
	return sql, nil
}

// conditionToSQL renders a condition with bound values. Comparisons against
// a NULL column are false, except not-equals and not-in which match it.
func conditionToSQL(cond *Condition, b *binder) (string, error) {
	col := b.dialect.Quote(cond.Column)

	switch cond.Operator {
	case filter.Equals:
		if cond.Value == nil {
			return sqlFalse, nil
		}
		return fmt.Sprintf("%s = %s", col, b.bind(cond.Value)), nil

	case filter.NotEquals:
		if cond.Value == nil {
			return fmt.Sprintf("%s IS NOT NULL", col), nil
		}
		return fmt.Sprintf("(%s IS NULL OR %s <> %s)", col, col, b.bind(cond.Value)), nil

	case filter.GreaterThan, filter.GreaterThanOrEqual, filter.LessThan, filter.LessThanOrEqual:
		if cond.Value == nil {
			return sqlFalse, nil
		}
		return fmt.Sprintf("%s %s %s", col, comparison(cond.Operator), b.bind(cond.Value)), nil

	case filter.Exists:
		return fmt.Sprintf("%s IS NOT NULL", col), nil

	case filter.In:
		values := nonNil(cond.Values)
		if len(values) == 0 {
			return sqlFalse, nil
		}
		return fmt.Sprintf("%s IN (%s)", col, placeholders(values, b)), nil

	case filter.NotIn:
		values := nonNil(cond.Values)
		if len(values) == 0 {
			return sqlTrue, nil
		}
		return fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))", col, col, placeholders(values, b)), nil

	case filter.Regex:
		flags := filter.RegexFlags(cond.Flags)
		sql, pattern := b.dialect.Regex(col, b.dialect.Placeholder(len(b.args)+1), flags)
		b.args = append(b.args, pattern(fmt.Sprint(cond.Value)))
		return sql, nil

	case filter.Like:
		insensitive := strings.Contains(cond.Flags, "i")
		return b.dialect.Like(col, b.bind(fmt.Sprint(cond.Value)), insensitive), nil
	}

	return "", fmt.Errorf("%s: %w", cond.Operator, filter.ErrUnknownOperator)
}

func comparison(op filter.Operator) string {
	switch op {
	case filter.GreaterThan:
		return ">"
	case filter.GreaterThanOrEqual:
		return ">="
	case filter.LessThan:
		return "<"
	default:
		return "<="
	}
}

func placeholders(values []interface{}, b *binder) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = b.bind(v)
	}
	return strings.Join(out, ", ")
}

func nonNil(values []interface{}) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// SelectBuilder provides a fluent API for building statements against one
// table
type SelectBuilder struct {
	dialect Dialect
	table   string
	where   *PredicateGroup
	orderBy []string
	limit   int
	offset  int
}

// NewSelectBuilder creates a builder for table
func NewSelectBuilder(d Dialect, table string) *SelectBuilder {
	return &SelectBuilder{
		dialect: d,
		table:   table,
		where:   NewPredicateGroup(false),
	}
}

// Where adds an AND condition
func (sb *SelectBuilder) Where(column string, op filter.Operator, value interface{}) *SelectBuilder {
	sb.where.AddCondition(&Condition{Column: column, Operator: op, Value: value})
	return sb
}

// WhereIn adds an IN condition
func (sb *SelectBuilder) WhereIn(column string, values []interface{}) *SelectBuilder {
	sb.where.AddCondition(&Condition{Column: column, Operator: filter.In, Values: values})
	return sb
}

// WhereNotIn adds a NOT IN condition
func (sb *SelectBuilder) WhereNotIn(column string, values []interface{}) *SelectBuilder {
	sb.where.AddCondition(&Condition{Column: column, Operator: filter.NotIn, Values: values})
	return sb
}

// WhereNotNull adds an IS NOT NULL condition
func (sb *SelectBuilder) WhereNotNull(column string) *SelectBuilder {
	sb.where.AddCondition(&Condition{Column: column, Operator: filter.Exists})
	return sb
}

// Group adds a nested group
func (sb *SelectBuilder) Group(group *PredicateGroup) *SelectBuilder {
	sb.where.AddGroup(group)
	return sb
}

// OrderBy adds a sort key. Missing values sort first ascending and last
// descending.
func (sb *SelectBuilder) OrderBy(column string, order filter.Order) *SelectBuilder {
	col := sb.dialect.Quote(column)
	if order == filter.Desc {
		sb.orderBy = append(sb.orderBy, col+" DESC NULLS LAST")
	} else {
		sb.orderBy = append(sb.orderBy, col+" ASC NULLS FIRST")
	}
	return sb
}

// Limit sets the maximum number of rows; zero or less means no limit
func (sb *SelectBuilder) Limit(n int) *SelectBuilder {
	sb.limit = n
	return sb
}

// Offset sets the number of rows to skip
func (sb *SelectBuilder) Offset(n int) *SelectBuilder {
	sb.offset = n
	return sb
}

func (sb *SelectBuilder) whereSQL(b *binder) (string, error) {
	if sb.where.IsEmpty() {
		return "", nil
	}
	sql, err := sb.where.toSQL(b)
	if err != nil {
		return "", fmt.Errorf("failed to build condition: %w", err)
	}
	return " WHERE " + sql, nil
}

// ToSQL generates the SELECT statement and its bind arguments
func (sb *SelectBuilder) ToSQL() (string, []interface{}, error) {
	b := &binder{dialect: sb.dialect}

	var sql strings.Builder
	sql.WriteString("SELECT * FROM ")
	sql.WriteString(sb.dialect.Quote(sb.table))

	where, err := sb.whereSQL(b)
	if err != nil {
		return "", nil, err
	}
	sql.WriteString(where)

	if len(sb.orderBy) > 0 {
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(sb.orderBy, ", "))
	}

	switch {
	case sb.limit > 0:
		sql.WriteString(" LIMIT " + b.bind(sb.limit))
	case sb.offset > 0:
		sql.WriteString(" LIMIT " + sb.dialect.unlimited)
	}
	if sb.offset > 0 {
		sql.WriteString(" OFFSET " + b.bind(sb.offset))
	}

	return sql.String(), b.args, nil
}

// CountSQL generates a COUNT(*) statement ignoring order and pagination
func (sb *SelectBuilder) CountSQL() (string, []interface{}, error) {
	b := &binder{dialect: sb.dialect}
	where, err := sb.whereSQL(b)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM " + sb.dialect.Quote(sb.table) + where, b.args, nil
}

// SumSQL generates a statement summing columns, with 0 for no rows
func (sb *SelectBuilder) SumSQL(columns []string) (string, []interface{}, error) {
	b := &binder{dialect: sb.dialect}
	where, err := sb.whereSQL(b)
	if err != nil {
		return "", nil, err
	}
	sums := make([]string, len(columns))
	for i, c := range columns {
		sums[i] = fmt.Sprintf("COALESCE(SUM(%s), 0)", sb.dialect.Quote(c))
	}
	return "SELECT " + strings.Join(sums, ", ") + " FROM " + sb.dialect.Quote(sb.table) + where, b.args, nil
}

// DeleteSQL generates a DELETE statement
func (sb *SelectBuilder) DeleteSQL() (string, []interface{}, error) {
	b := &binder{dialect: sb.dialect}
	where, err := sb.whereSQL(b)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + sb.dialect.Quote(sb.table) + where, b.args, nil
}

// UpdateSQL generates an UPDATE statement setting columns in order
func (sb *SelectBuilder) UpdateSQL(columns []string, values []interface{}) (string, []interface{}, error) {
	b := &binder{dialect: sb.dialect}
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = %s", sb.dialect.Quote(c), b.bind(values[i]))
	}
	where, err := sb.whereSQL(b)
	if err != nil {
		return "", nil, err
	}
	return "UPDATE " + sb.dialect.Quote(sb.table) + " SET " + strings.Join(sets, ", ") + where, b.args, nil
}
