package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/foxmirror/internal/ir"
	"github.com/roach88/foxmirror/internal/queryir"
	"github.com/roach88/foxmirror/internal/schema"
)

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// All values are parameterized, never interpolated. Every SELECT carries an
// ORDER BY on the surrogate key so results are stable across runs.
type SQLCompiler struct {
	// Table is the table every query targets.
	Table string
}

// NewSQLCompiler creates a compiler targeting the mirror table.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: schema.MirrorTable}
}

// Compile converts a QueryIR query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	case queryir.Update:
		return c.compileUpdate(query)
	case *queryir.Update:
		return c.compileUpdate(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// CompileWhere compiles a predicate on its own, for callers that build the
// rest of the statement themselves. A nil predicate compiles to "1 = 1".
func (c *SQLCompiler) CompileWhere(p queryir.Predicate) (string, []any, error) {
	return c.compilePredicate(p)
}

// compileSelect compiles a queryir.Select to SQL.
func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	selectClause := "*"
	if len(q.Fields) > 0 {
		quoted := make([]string, len(q.Fields))
		for i, f := range q.Fields {
			quoted[i] = schema.QuoteIdent(f)
		}
		selectClause = strings.Join(quoted, ", ")
	}

	var whereClause string
	var params []any
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		whereClause = " WHERE " + filterSQL
		params = filterParams
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		selectClause, c.Table, whereClause, c.stableOrderKey())

	if q.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, int64(q.Limit))
	}

	return sql, params, nil
}

// compileUpdate compiles a queryir.Update to SQL.
func (c *SQLCompiler) compileUpdate(q queryir.Update) (string, []any, error) {
	if len(q.Assignments) == 0 {
		return "", nil, fmt.Errorf("update has no assignments")
	}

	var setParts []string
	var params []any
	for _, a := range q.Assignments {
		sql, ps, err := c.compileAssignment(a)
		if err != nil {
			return "", nil, err
		}
		setParts = append(setParts, sql)
		params = append(params, ps...)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s", c.Table, strings.Join(setParts, ", "))
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sql += " WHERE " + filterSQL
		params = append(params, filterParams...)
	}

	return sql, params, nil
}

// compileAssignment compiles one SET clause.
func (c *SQLCompiler) compileAssignment(a queryir.Assignment) (string, []any, error) {
	switch asg := a.(type) {
	case queryir.Set:
		return c.compileSet(asg)
	case *queryir.Set:
		return c.compileSet(*asg)
	case queryir.Replace:
		return c.compileReplace(asg)
	case *queryir.Replace:
		return c.compileReplace(*asg)
	default:
		return "", nil, fmt.Errorf("unsupported assignment type: %T", a)
	}
}

func (c *SQLCompiler) compileSet(s queryir.Set) (string, []any, error) {
	return fmt.Sprintf("%s = ?", schema.QuoteIdent(s.Field)), []any{ir.Param(s.Value)}, nil
}

func (c *SQLCompiler) compileReplace(r queryir.Replace) (string, []any, error) {
	col := schema.QuoteIdent(r.Field)
	return fmt.Sprintf("%s = replace(%s, ?, ?)", col, col), []any{r.Old, r.New}, nil
}

// stableOrderKey returns the ORDER BY clause for a query.
func (c *SQLCompiler) stableOrderKey() string {
	return "id ASC"
}

// compilePredicate compiles a queryir.Predicate to SQL WHERE clause fragment.
// Values are never interpolated - always ? placeholders.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil // Always true
	}

	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileEquals(pred)
	case *queryir.Equals:
		return c.compileEquals(*pred)
	case queryir.Contains:
		return c.compileContains(pred)
	case *queryir.Contains:
		return c.compileContains(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals compiles an Equals predicate to "field = ?" or "field IS NULL".
func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	col := schema.QuoteIdent(eq.Field)
	if ir.IsNull(eq.Value) {
		return col + " IS NULL", nil, nil
	}
	return col + " = ?", []any{ir.Param(eq.Value)}, nil
}

// compileContains compiles a case-insensitive substring match.
// instr is used instead of LIKE so % and _ in the substring need no escaping;
// casefold is registered on every connection by the store package.
func (c *SQLCompiler) compileContains(ct queryir.Contains) (string, []any, error) {
	col := schema.QuoteIdent(ct.Field)
	return fmt.Sprintf("instr(casefold(%s), casefold(?)) > 0", col), []any{ct.Substring}, nil
}

// compileAnd compiles an And predicate to conjunction with AND.
func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil // Always true (vacuous truth)
	}

	var sqlParts []string
	var allParams []any

	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, "("+sql+")")
		allParams = append(allParams, params...)
	}

	return strings.Join(sqlParts, " AND "), allParams, nil
}
