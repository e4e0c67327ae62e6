// Package sqlite implements an agent over a relational SQLite database.
//
// Entity types map to tables through internal/metadata. Criteria compile to
// SQL with named parameters; selects, joins, group-bys and having are
// supported. Find keeps an identity map, so looking up the same row twice
// yields the same object.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/roach88/objectagent/internal/agent"
	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/capability"
	"github.com/roach88/objectagent/internal/compile"
	"github.com/roach88/objectagent/internal/metadata"
	"github.com/roach88/objectagent/internal/query"
)

// Name identifies the backend in errors and logs.
const Name = "sqlite"

// DefaultCapabilities lists what the sqlite agent supports.
var DefaultCapabilities = capability.New(capability.Config{
	SupportedComparators: query.Comparators,
	CanQueryCount:        true,
	CanQueryJoin:         true,
	CanQuerySelect:       true,
	CanQueryHaving:       true,
})

type opKind int

const (
	opPersist opKind = iota
	opRemove
)

type stagedOp struct {
	kind   opKind
	object any
}

// Agent is the sqlite backend. It is not safe for concurrent use.
type Agent struct {
	db      *sql.DB
	classes *metadata.Registry
	caps    capability.Capabilities
	logger  *slog.Logger
	timeout time.Duration

	identity map[string]any
	managed  map[any]bool
	staged   []stagedOp
}

var _ agent.Agent = (*Agent)(nil)

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithCapabilities narrows the default capabilities.
func WithCapabilities(caps capability.Capabilities) Option {
	return func(a *Agent) { a.caps = a.caps.Narrow(caps) }
}

// WithTimeout bounds every statement by d.
// Zero, the default, means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Agent) { a.timeout = d }
}

// New creates an agent over db for the classes in classes.
func New(db *sql.DB, classes *metadata.Registry, opts ...Option) *Agent {
	a := &Agent{
		db:       db,
		classes:  classes,
		caps:     DefaultCapabilities,
		logger:   slog.Default(),
		identity: make(map[string]any),
		managed:  make(map[any]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DB returns the database handle.
func (a *Agent) DB() *sql.DB { return a.db }

func (a *Agent) Supports(entityType string) bool {
	_, ok := a.classes.Class(entityType)
	return ok
}

func (a *Agent) Capabilities() capability.Capabilities { return a.caps }

func (a *Agent) context() (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(context.Background(), a.timeout)
	}
	return context.WithCancel(context.Background())
}

// Find requires entityType: rows carry no type information.
func (a *Agent) Find(identifier any, entityType string) (any, error) {
	if entityType == "" {
		return nil, agenterr.MandatoryArgument(Name, "entityType", identifier)
	}
	objects, err := a.FindMany([]any{identifier}, entityType)
	if err != nil {
		return nil, err
	}
	return objects[0], nil
}

// FindMany loads the objects with one query and returns them in the order of
// identifiers.
func (a *Agent) FindMany(identifiers []any, entityType string) ([]any, error) {
	if entityType == "" {
		return nil, agenterr.MandatoryArgument(Name, "entityType", identifiers)
	}
	class, err := a.class(entityType)
	if err != nil {
		return nil, err
	}
	id, ok := class.SingleID()
	if !ok {
		return nil, agenterr.CompositeIdentifier(Name, class.Name(), class.IDFieldNames())
	}

	found := make(map[string]any, len(identifiers))
	var missing []any
	for _, identifier := range identifiers {
		if obj, ok := a.identity[identityKey(class, []any{identifier})]; ok {
			found[fmt.Sprint(identifier)] = obj
			continue
		}
		missing = append(missing, identifier)
	}

	if len(missing) > 0 {
		cmp, err := query.Compare(query.In, id.Name, missing)
		if err != nil {
			return nil, err
		}
		q, err := query.New(class.Name(), query.WithCriteria(cmp))
		if err != nil {
			return nil, err
		}
		// Lookups by identifier do not depend on narrowed capabilities.
		stmt, err := Compile(a.classes, DefaultCapabilities, q)
		if err != nil {
			return nil, err
		}
		cur, err := a.cursor(stmt)
		if err != nil {
			return nil, err
		}
		loaded, err := cur.All()
		if err != nil {
			return nil, err
		}
		for _, obj := range loaded {
			v, err := class.Get(obj, id.Name)
			if err != nil {
				return nil, err
			}
			found[fmt.Sprint(v)] = obj
		}
	}

	out := make([]any, len(identifiers))
	for i, identifier := range identifiers {
		obj, ok := found[fmt.Sprint(identifier)]
		if !ok {
			return nil, agenterr.ObjectNotFound(class.Name(), identifier)
		}
		out[i] = obj
	}
	return out, nil
}

func (a *Agent) Persist(object any) error {
	if _, err := a.classOf(object); err != nil {
		return err
	}
	a.staged = append(a.staged, stagedOp{kind: opPersist, object: object})
	return nil
}

func (a *Agent) Remove(object any) error {
	if _, err := a.classOf(object); err != nil {
		return err
	}
	a.staged = append(a.staged, stagedOp{kind: opRemove, object: object})
	return nil
}

// assignedID records an identifier generated during a flush so it can be
// reset when the transaction rolls back.
type assignedID struct {
	class  *metadata.Class
	object any
	field  string
}

// Flush writes staged operations in one transaction. When the transaction
// fails nothing is written, generated identifiers are reset and every
// operation stays staged.
func (a *Agent) Flush() error {
	if len(a.staged) == 0 {
		return nil
	}
	ctx, cancel := a.context()
	defer cancel()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin flush")
	}

	var assigned []assignedID
	written := make(map[any]bool)
	rollback := func(cause error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			a.logger.Warn("rollback failed", "agent", Name, "error", rbErr)
		}
		for _, as := range assigned {
			if err := as.class.Set(as.object, as.field, nil); err != nil {
				a.logger.Warn("reset generated identifier failed", "agent", Name, "error", err)
			}
		}
		a.logger.Error("flush failed", "agent", Name, "pending", len(a.staged), "error", cause)
		return cause
	}

	for i, op := range a.staged {
		var err error
		switch op.kind {
		case opPersist:
			err = a.write(ctx, tx, op.object, written, &assigned)
		case opRemove:
			err = a.delete(ctx, tx, op.object)
		}
		if err != nil {
			return rollback(errors.Wrapf(err, "flush operation %d", i))
		}
	}
	if err := tx.Commit(); err != nil {
		return rollback(errors.Wrap(err, "commit flush"))
	}

	for _, op := range a.staged {
		class, _ := a.classOf(op.object)
		key, err := a.objectKey(class, op.object)
		if err != nil {
			continue
		}
		switch op.kind {
		case opPersist:
			a.identity[key] = op.object
			a.managed[op.object] = true
		case opRemove:
			delete(a.identity, key)
			delete(a.managed, op.object)
		}
	}
	a.logger.Info("flushed", "agent", Name, "operations", len(a.staged))
	a.staged = nil
	return nil
}

// write inserts object, or updates it when it is managed or was already
// inserted earlier in the same flush.
func (a *Agent) write(ctx context.Context, tx *sql.Tx, object any, written map[any]bool, assigned *[]assignedID) error {
	class, err := a.classOf(object)
	if err != nil {
		return err
	}
	if a.managed[object] || written[object] {
		return a.update(ctx, tx, class, object)
	}
	written[object] = true
	return a.insert(ctx, tx, class, object, assigned)
}

func (a *Agent) insert(ctx context.Context, tx *sql.Tx, class *metadata.Class, object any, assigned *[]assignedID) error {
	params := compile.NewParameters(compile.FieldNames)
	var cols, placeholders []string
	var generated *metadata.Field

	id, single := class.SingleID()
	for _, f := range columns(class) {
		v, err := class.Get(object, f.Name)
		if err != nil {
			return err
		}
		if single && f.ID && isZero(v) && columnType(f.Type) == "INTEGER" {
			generated = &id
			continue
		}
		cols = append(cols, quoteIdent(f.Name))
		placeholders = append(placeholders, ":"+params.Register(f.Name, v))
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(class.Table()), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if len(cols) == 0 {
		stmt = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quoteIdent(class.Table()))
	}
	res, err := a.exec(ctx, tx, stmt, params)
	if err != nil {
		return err
	}

	if generated != nil {
		lastID, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "read generated identifier")
		}
		if err := class.Set(object, generated.Name, lastID); err != nil {
			return err
		}
		*assigned = append(*assigned, assignedID{class: class, object: object, field: generated.Name})
	}
	return nil
}

func (a *Agent) update(ctx context.Context, tx *sql.Tx, class *metadata.Class, object any) error {
	params := compile.NewParameters(compile.FieldNames)
	var sets []string
	for _, f := range columns(class) {
		if f.ID {
			continue
		}
		v, err := class.Get(object, f.Name)
		if err != nil {
			return err
		}
		sets = append(sets, quoteIdent(f.Name)+" = :"+params.Register(f.Name, v))
	}
	if len(sets) == 0 {
		return nil
	}
	where, err := idCondition(class, object, params)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", quoteIdent(class.Table()), strings.Join(sets, ", "), where)
	_, err = a.exec(ctx, tx, stmt, params)
	return err
}

func (a *Agent) delete(ctx context.Context, tx *sql.Tx, object any) error {
	class, err := a.classOf(object)
	if err != nil {
		return err
	}
	params := compile.NewParameters(compile.FieldNames)
	where, err := idCondition(class, object, params)
	if err != nil {
		return err
	}
	_, err = a.exec(ctx, tx, fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(class.Table()), where), params)
	return err
}

func idCondition(class *metadata.Class, object any, params *compile.Parameters) (string, error) {
	ids := class.IDFields()
	if len(ids) == 0 {
		return "", agenterr.InvalidArgument("type %q has no identifier field", class.Name())
	}
	conds := make([]string, len(ids))
	for i, f := range ids {
		v, err := class.Get(object, f.Name)
		if err != nil {
			return "", err
		}
		conds[i] = quoteIdent(f.Name) + " = :" + params.Register(f.Name, v)
	}
	return strings.Join(conds, " AND "), nil
}

func (a *Agent) exec(ctx context.Context, tx *sql.Tx, stmt string, params *compile.Parameters) (sql.Result, error) {
	a.logger.Debug("exec", "agent", Name, "sql", stmt, "params", params.Len())
	res, err := tx.ExecContext(ctx, stmt, Statement{Params: params.All()}.Args()...)
	if err != nil {
		return nil, errors.Wrapf(err, "exec %s", stmt)
	}
	return res, nil
}

// Query runs q and returns a cursor over the rows. Entity queries yield
// objects of the queried type; queries with selects yield map[string]any
// rows keyed by select alias.
func (a *Agent) Query(q *query.Query) (*agent.Cursor, error) {
	stmt, err := Compile(a.classes, a.caps, q)
	if err != nil {
		return nil, err
	}
	return a.cursor(stmt)
}

// Explain returns the SQL and parameters Query would run for q.
func (a *Agent) Explain(q *query.Query) (string, error) {
	stmt, err := Compile(a.classes, a.caps, q)
	if err != nil {
		return "", err
	}
	return stmt.String(), nil
}

// cursor runs stmt and reads every row before returning, so the single
// pooled connection is free again while the caller iterates.
func (a *Agent) cursor(stmt Statement) (*agent.Cursor, error) {
	a.logger.Debug("query", "agent", Name, "sql", stmt.SQL, "params", len(stmt.Params))

	ctx, cancel := a.context()
	defer cancel()
	rows, err := a.db.QueryContext(ctx, stmt.SQL, stmt.Args()...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", stmt.SQL)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "read columns")
	}

	var scanned [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan row")
		}
		scanned = append(scanned, values)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "iterate rows")
	}
	if err := rows.Close(); err != nil {
		return nil, errors.Wrap(err, "close rows")
	}

	// Hydration happens after the rows are released.
	objects := make([]any, 0, len(scanned))
	for _, values := range scanned {
		if stmt.Projected {
			objects = append(objects, projectRow(cols, values))
			continue
		}
		obj, err := a.hydrate(stmt.Class, cols, values)
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	return agent.SliceCursor(objects), nil
}

func (a *Agent) QueryCount(q *query.Query) (int, error) {
	if !a.caps.CanQueryCount() {
		return 0, agenterr.CapabilityViolation(Name, "query count")
	}
	stmt, err := CompileCount(a.classes, a.caps, q)
	if err != nil {
		return 0, err
	}
	a.logger.Debug("query count", "agent", Name, "sql", stmt.SQL, "params", len(stmt.Params))

	ctx, cancel := a.context()
	defer cancel()
	var n int
	if err := a.db.QueryRowContext(ctx, stmt.SQL, stmt.Args()...).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "query %s", stmt.SQL)
	}
	return n, nil
}

// hydrate returns the managed instance for the row, creating it on first
// sight.
func (a *Agent) hydrate(class *metadata.Class, cols []string, values []any) (any, error) {
	byCol := make(map[string]any, len(cols))
	for i, c := range cols {
		byCol[c] = values[i]
	}

	ids := make([]any, 0, 1)
	for _, f := range class.IDFields() {
		ids = append(ids, normalize(byCol[f.Name]))
	}
	key := identityKey(class, ids)
	if obj, ok := a.identity[key]; ok {
		return obj, nil
	}

	obj := class.New()
	for _, f := range columns(class) {
		v, ok := byCol[f.Name]
		if !ok {
			continue
		}
		if err := class.Set(obj, f.Name, v); err != nil {
			return nil, err
		}
	}
	a.identity[key] = obj
	a.managed[obj] = true
	return obj, nil
}

func projectRow(cols []string, values []any) map[string]any {
	row := make(map[string]any, len(cols))
	for i, c := range cols {
		row[c] = normalize(values[i])
	}
	return row
}

// normalize returns text columns as strings.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func (a *Agent) Identifier(object any) (any, error) {
	class, err := a.classOf(object)
	if err != nil {
		return nil, err
	}
	return class.Identifier(Name, object)
}

func (a *Agent) CanonicalType(entityType string) string {
	return a.classes.Canonical(entityType)
}

func (a *Agent) SetParent(object, parent any) error {
	return agenterr.CapabilityViolation(Name, "set parent")
}

func (a *Agent) class(entityType string) (*metadata.Class, error) {
	class, ok := a.classes.Class(entityType)
	if !ok {
		return nil, agenterr.InvalidArgument("no class registered for type %q", entityType)
	}
	return class, nil
}

func (a *Agent) classOf(object any) (*metadata.Class, error) {
	class, ok := a.classes.ClassOf(object)
	if !ok {
		return nil, agenterr.InvalidArgument("no class registered for object of type %T", object)
	}
	if !class.Owns(object) {
		return nil, agenterr.InvalidArgument("object of type %T must be passed by pointer", object)
	}
	return class, nil
}

func (a *Agent) objectKey(class *metadata.Class, object any) (string, error) {
	ids := class.IDFields()
	values := make([]any, len(ids))
	for i, f := range ids {
		v, err := class.Get(object, f.Name)
		if err != nil {
			return "", err
		}
		values[i] = v
	}
	return identityKey(class, values), nil
}

func identityKey(class *metadata.Class, ids []any) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return class.Name() + "\x00" + strings.Join(parts, "\x00")
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}
