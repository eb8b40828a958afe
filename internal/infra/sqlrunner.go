package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLExecutor is the query surface used by repositories. Every query must
// start with a "--sql <uuid>" line.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var markerRegexp = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)

var ErrMissingMarker = errors.New("sql marker missing or invalid")

const defaultSlowQuery = 250 * time.Millisecond

// SQLRunner strips the marker before sending a query and logs each call under
// it. Calls slower than SlowQuery are logged at warn level.
type SQLRunner struct {
	db        Querier
	logger    Logger
	SlowQuery time.Duration
	now       func() time.Time
}

func NewSQLRunner(db Querier, logger Logger) *SQLRunner {
	return &SQLRunner{db: db, logger: logger, SlowQuery: defaultSlowQuery, now: time.Now}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, body, err := ExtractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := r.now()
	tag, err := r.db.Exec(ctx, body, args...)
	r.observe(marker, "exec", start, tag.RowsAffected(), err)
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, body, err := ExtractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	return &timedRow{r: r, row: r.db.QueryRow(ctx, body, args...), marker: marker, start: r.now()}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, body, err := ExtractMarker(query)
	if err != nil {
		return nil, err
	}
	start := r.now()
	rows, err := r.db.Query(ctx, body, args...)
	if err != nil {
		r.observe(marker, "query", start, 0, err)
		return nil, err
	}
	return &timedRows{Rows: rows, r: r, marker: marker, start: start}, nil
}

func (r *SQLRunner) observe(marker, op string, start time.Time, rows int64, err error) {
	elapsed := r.now().Sub(start)
	switch {
	case err != nil && !IsNoRows(err):
		r.logger.Error().Err(err).Str("sql", marker).Str("op", op).Dur("elapsed", elapsed).Msg("sql failed")
	case r.SlowQuery > 0 && elapsed >= r.SlowQuery:
		r.logger.Warn().Str("sql", marker).Str("op", op).Int64("rows", rows).Dur("elapsed", elapsed).Msg("slow sql")
	default:
		r.logger.Debug().Str("sql", marker).Str("op", op).Int64("rows", rows).Dur("elapsed", elapsed).Msg("sql")
	}
}

type timedRow struct {
	r      *SQLRunner
	row    pgx.Row
	marker string
	start  time.Time
}

func (t *timedRow) Scan(dest ...any) error {
	err := t.row.Scan(dest...)
	var n int64
	if err == nil {
		n = 1
	}
	t.r.observe(t.marker, "query_row", t.start, n, err)
	return err
}

// timedRows reports once, when the caller closes the result set.
type timedRows struct {
	pgx.Rows
	r      *SQLRunner
	marker string
	start  time.Time
	n      int64
	closed bool
}

func (t *timedRows) Next() bool {
	ok := t.Rows.Next()
	if ok {
		t.n++
	}
	return ok
}

func (t *timedRows) Close() {
	t.Rows.Close()
	if t.closed {
		return
	}
	t.closed = true
	t.r.observe(t.marker, "query", t.start, t.n, t.Rows.Err())
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

// ExtractMarker splits a marked query into its marker id and executable body.
func ExtractMarker(query string) (string, string, error) {
	head, body, ok := strings.Cut(strings.TrimSpace(query), "\n")
	m := markerRegexp.FindStringSubmatch(strings.TrimSpace(head))
	if m == nil || !ok || strings.TrimSpace(body) == "" {
		return "", "", ErrMissingMarker
	}
	return m[1], strings.TrimSpace(body), nil
}

// IsNoRows reports whether err signals an empty result set.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var _ SQLExecutor = (*SQLRunner)(nil)
