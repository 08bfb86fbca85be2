package querysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/orgadmin/internal/fieldref"
	"github.com/roach88/orgadmin/internal/ir"
	"github.com/roach88/orgadmin/internal/model"
	"github.com/roach88/orgadmin/internal/queryir"
)

var (
	// ErrUnknownPath indicates a query path the registry cannot walk.
	ErrUnknownPath = errors.New("unknown query path")

	// ErrInvalidQuery indicates a query rejected by queryir.Validate.
	ErrInvalidQuery = errors.New("invalid query")
)

// PathError reports a query path that does not exist on an entity.
type PathError struct {
	Entity string // Root entity of the query
	Path   string // Full double-underscore path
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %s.%s: %s", ErrUnknownPath, e.Entity, e.Path, e.Reason)
}

func (e *PathError) Unwrap() error {
	return ErrUnknownPath
}

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// Query paths are walked through the registry: to-one segments become
// INNER JOINs on the relation's column, to-many segments join through the
// link table. A filter that crosses a to-many segment selects root ids in a
// subquery, so each root row is returned once; negating such a filter
// excludes every root row with a matching related row. Values are always
// bound as parameters, never interpolated. Every SELECT ends with
// ORDER BY t0.id so results are deterministic.
type SQLCompiler struct {
	Registry *model.Registry
}

// NewSQLCompiler creates a compiler over the given registry.
func NewSQLCompiler(reg *model.Registry) *SQLCompiler {
	return &SQLCompiler{Registry: reg}
}

// Compile converts a QueryIR query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	if result := queryir.Validate(q); !result.Valid {
		return "", nil, fmt.Errorf("%w: %s", ErrInvalidQuery, strings.Join(result.Issues, "; "))
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

// Columns returns the result column names a Select produces, in order.
func (c *SQLCompiler) Columns(q queryir.Select) ([]string, error) {
	if len(q.Fields) > 0 {
		return q.Fields, nil
	}
	entity, err := c.Registry.Entity(q.From)
	if err != nil {
		return nil, err
	}
	return entity.Columns(), nil
}

// compileSelect compiles a queryir.Select to SQL.
//
//	SELECT t0.id AS "id", t1.name AS "person__name"
//	FROM position t0 INNER JOIN naturalperson t1 ON t1.id = t0.person_id
//	WHERE t1.pos = ? ORDER BY t0.id ASC
func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	s, err := c.newScope(q.From)
	if err != nil {
		return "", nil, err
	}

	fields, err := c.Columns(q)
	if err != nil {
		return "", nil, err
	}

	cols := make([]string, len(fields))
	for i, f := range fields {
		expr, err := s.column(f)
		if err != nil {
			return "", nil, err
		}
		cols[i] = fmt.Sprintf("%s AS %q", expr, f)
	}

	where, params, err := s.filter(q.Filter)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(s.from())
	b.WriteString(where)
	b.WriteString(" ORDER BY " + rootAlias + ".id ASC")

	return b.String(), params, nil
}

// compileUpdate compiles a queryir.Update to SQL.
//
// The filter runs as a subquery so that it may cross relations:
//
//	UPDATE naturalperson SET yqpoint = yqpoint + ?
//	WHERE id IN (SELECT t0.id FROM naturalperson t0 WHERE t0.activated = ?)
func (c *SQLCompiler) compileUpdate(q queryir.Update) (string, []any, error) {
	s, err := c.newScope(q.From)
	if err != nil {
		return "", nil, err
	}

	sets := make([]string, 0, len(q.Set))
	var params []any
	for _, a := range q.Set {
		switch asg := a.(type) {
		case queryir.Assign:
			col, err := s.ownColumn(asg.Field)
			if err != nil {
				return "", nil, err
			}
			param, err := irValueToParam(asg.Value)
			if err != nil {
				return "", nil, fmt.Errorf("convert value for %s: %w", asg.Field, err)
			}
			sets = append(sets, col+" = ?")
			params = append(params, param)
		case queryir.Increment:
			col, err := s.ownColumn(asg.Field)
			if err != nil {
				return "", nil, err
			}
			sets = append(sets, fmt.Sprintf("%s = %s + ?", col, col))
			params = append(params, asg.By)
		default:
			return "", nil, fmt.Errorf("unsupported assignment type: %T", a)
		}
	}

	sql := fmt.Sprintf("UPDATE %s SET %s", s.root.Table, strings.Join(sets, ", "))
	if q.Filter == nil {
		return sql, params, nil
	}

	where, whereParams, err := s.where(q.Filter)
	if err != nil {
		return "", nil, err
	}
	sql += fmt.Sprintf(" WHERE id IN (SELECT %s.id%s%s)", rootAlias, s.from(), where)
	return sql, append(params, whereParams...), nil
}

const rootAlias = "t0"

// scope tracks the joins needed by one query. Joins are keyed by path
// prefix, so two predicates over person__* share a single join.
type scope struct {
	reg     *model.Registry
	root    *model.Entity
	joins   []string
	aliases map[string]string
	next    int
	toMany  bool // a join went through a link table
}

func (c *SQLCompiler) newScope(from string) (*scope, error) {
	if c.Registry == nil {
		return nil, fmt.Errorf("compiler has no model registry")
	}
	root, err := c.Registry.Entity(from)
	if err != nil {
		return nil, err
	}
	return &scope{
		reg:     c.Registry,
		root:    root,
		aliases: map[string]string{"": rootAlias},
		next:    1,
	}, nil
}

// sub returns an empty scope over the same root, for subqueries.
func (s *scope) sub() *scope {
	return &scope{
		reg:     s.reg,
		root:    s.root,
		aliases: map[string]string{"": rootAlias},
		next:    1,
	}
}

func (s *scope) from() string {
	clause := fmt.Sprintf(" FROM %s %s", s.root.Table, rootAlias)
	for _, j := range s.joins {
		clause += " " + j
	}
	return clause
}

func (s *scope) where(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	sql, params, err := s.compilePredicate(p)
	if err != nil {
		return "", nil, err
	}
	return " WHERE " + sql, params, nil
}

// filter compiles the WHERE clause of a Select. Joins through link tables
// would repeat root rows, so such filters select root ids in a subquery.
func (s *scope) filter(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	inner := s.sub()
	sql, params, err := inner.compilePredicate(p)
	if err != nil {
		return "", nil, err
	}
	if !inner.toMany {
		return s.where(p)
	}
	return fmt.Sprintf(" WHERE %s.id IN (SELECT %s.id%s WHERE %s)",
		rootAlias, rootAlias, inner.from(), sql), params, nil
}

// crossesToMany reports whether p walks through a link table.
func (s *scope) crossesToMany(p queryir.Predicate) bool {
	inner := s.sub()
	if _, _, err := inner.compilePredicate(p); err != nil {
		return false
	}
	return inner.toMany
}

func (s *scope) alias() string {
	a := fmt.Sprintf("t%d", s.next)
	s.next++
	return a
}

func (s *scope) pathError(path, reason string) error {
	return &PathError{Entity: s.root.Name, Path: path, Reason: reason}
}

// ownColumn resolves an assignment target, which must live on the root.
func (s *scope) ownColumn(field string) (string, error) {
	if f, ok := s.root.Field(field); ok {
		if col := f.Column(); col != "" {
			return col, nil
		}
		return "", s.pathError(field, fmt.Sprintf("%s has no column to assign", f.Kind))
	}
	for _, col := range s.root.Columns() {
		if col == field && col != model.PrimaryKey {
			return col, nil
		}
	}
	return "", s.pathError(field, "not a column")
}

// column walks a query path and returns the qualified column it ends on,
// adding joins as needed.
func (s *scope) column(path string) (string, error) {
	segs := strings.Split(path, queryir.PathSeparator)
	entity := s.root
	alias := rootAlias
	prefix := ""

	for i, seg := range segs {
		last := i == len(segs)-1

		if seg == model.PrimaryKey {
			if !last {
				return "", s.pathError(path, "id is not a relation")
			}
			return alias + ".id", nil
		}

		f, ok := entity.Field(seg)
		if !ok {
			rel, isIndex := strings.CutSuffix(seg, fieldref.ForeignIndexSuffix)
			if isIndex {
				if rf, ok := entity.Field(rel); ok && rf.IsToOne() {
					if !last {
						return "", s.pathError(path, fmt.Sprintf("storage column %s must be last", seg))
					}
					return alias + "." + seg, nil
				}
			}
			return "", s.pathError(path, fmt.Sprintf("%s has no attribute %q", entity.Name, seg))
		}

		prefix += seg + queryir.PathSeparator

		switch f.Kind {
		case model.KindScalar:
			if !last {
				return "", s.pathError(path, fmt.Sprintf("%s.%s is not a relation", entity.Name, seg))
			}
			return alias + "." + f.Name, nil

		case model.KindForeignKey, model.KindOneToOne:
			if last {
				// Comparing a relation compares the related id.
				return alias + "." + f.Column(), nil
			}
			related, err := s.reg.Entity(f.Related)
			if err != nil {
				return "", err
			}
			next, ok := s.aliases[prefix]
			if !ok {
				next = s.alias()
				s.aliases[prefix] = next
				s.joins = append(s.joins, fmt.Sprintf("INNER JOIN %s %s ON %s.id = %s.%s",
					related.Table, next, next, alias, f.Column()))
			}
			entity, alias = related, next

		case model.KindManyToMany:
			related, err := s.reg.Entity(f.Related)
			if err != nil {
				return "", err
			}
			s.toMany = true
			link := entity.JoinTable(f)
			linkKey := prefix + "#link"
			linkAlias, ok := s.aliases[linkKey]
			if !ok {
				linkAlias = s.alias()
				s.aliases[linkKey] = linkAlias
				s.joins = append(s.joins, fmt.Sprintf("INNER JOIN %s %s ON %s.%s_id = %s.id",
					link, linkAlias, linkAlias, entity.Table, alias))
			}
			if last {
				return fmt.Sprintf("%s.%s_id", linkAlias, related.Table), nil
			}
			next, ok := s.aliases[prefix]
			if !ok {
				next = s.alias()
				s.aliases[prefix] = next
				s.joins = append(s.joins, fmt.Sprintf("INNER JOIN %s %s ON %s.id = %s.%s_id",
					related.Table, next, next, linkAlias, related.Table))
			}
			entity, alias = related, next

		default:
			return "", s.pathError(path, fmt.Sprintf("%s.%s is a reverse accessor", entity.Name, seg))
		}
	}

	return "", s.pathError(path, "empty path")
}

// compilePredicate compiles a queryir.Predicate to SQL WHERE clause fragment.
// Returns (sql, params, error).
func (s *scope) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		col, err := s.column(pred.Field)
		if err != nil {
			return "", nil, err
		}
		param, err := irValueToParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("convert value: %w", err)
		}
		return col + " = ?", []any{param}, nil

	case queryir.Compare:
		if pred.Op == queryir.OpNE {
			eq := queryir.Equals{Field: pred.Field, Value: pred.Value}
			if s.crossesToMany(eq) {
				return s.compilePredicate(queryir.Not{Predicate: eq})
			}
		}
		col, err := s.column(pred.Field)
		if err != nil {
			return "", nil, err
		}
		param, err := irValueToParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("convert value: %w", err)
		}
		return fmt.Sprintf("%s %s ?", col, queryir.ValidOps[pred.Op]), []any{param}, nil

	case queryir.In:
		col, err := s.column(pred.Field)
		if err != nil {
			return "", nil, err
		}
		marks := make([]string, len(pred.Values))
		params := make([]any, len(pred.Values))
		for i, v := range pred.Values {
			param, err := irValueToParam(v)
			if err != nil {
				return "", nil, fmt.Errorf("convert value: %w", err)
			}
			marks[i] = "?"
			params[i] = param
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", ")), params, nil

	case queryir.Not:
		// Over a to-many path, NOT excludes every root with a matching
		// related row instead of keeping roots that have some other one.
		inner := s.sub()
		sql, params, err := inner.compilePredicate(pred.Predicate)
		if err != nil {
			return "", nil, err
		}
		if inner.toMany {
			return fmt.Sprintf("%s.id NOT IN (SELECT %s.id%s WHERE %s)",
				rootAlias, rootAlias, inner.from(), sql), params, nil
		}
		sql, params, err = s.compilePredicate(pred.Predicate)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", params, nil

	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil // Always true (vacuous truth)
		}
		var sqlParts []string
		var allParams []any
		for _, sub := range pred.Predicates {
			sql, params, err := s.compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			if _, nested := sub.(queryir.And); nested {
				sql = "(" + sql + ")"
			}
			sqlParts = append(sqlParts, sql)
			allParams = append(allParams, params...)
		}
		return strings.Join(sqlParts, " AND "), allParams, nil

	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// irValueToParam converts an ir.IRValue to a Go native type for SQL parameter.
// Supports string, int, bool. Arrays and objects are not directly supported
// as SQL parameters.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		return bool(val), nil
	case ir.IRNull:
		return nil, nil
	case ir.IRArray:
		return nil, fmt.Errorf("IRArray cannot be used as SQL parameter directly")
	case ir.IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
