/*
Package sqlite provides a SQLite-backed implementation of harm.Store.

PURPOSE:
  Persists the source-of-truth event lists (substance events, interventions,
  abstinence breaks, risk profiles) and the derived daily harm snapshots.
  The same SQL applies to PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  harm.HistoryReader: full event history for one user
  harm.EventWriter:   insert-or-replace by ID, soft delete
  harm.SnapshotStore: idempotent daily snapshot upsert

KEY TABLES:
  substance_events:  one row per logged use, origin points fixed at creation
  interventions:     wellness activities
  abstinence_breaks: declared non-use periods
  risk_profiles:     one row per user
  harm_snapshots:    one row per (user_id, date), UNIQUE

IDEMPOTENCY:
  harm_snapshots is written with INSERT ... ON CONFLICT(user_id, date) DO
  UPDATE. Amounts are stored as fixed 2-dp text and no write timestamp is
  kept, so repeating a recompute with unchanged events leaves the row
  byte-identical.

ERRORS:
  Driver failures are wrapped with harm.NewStoreError so callers can test
  errors.Is(err, harm.ErrStoreUnavailable). Missing rows are harm.ErrNotFound.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. ":memory:" databases are pinned to a
  single connection since every new connection would open an empty database.

USAGE:
  store, err := sqlite.New("./data/harmindex.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  t := tracker.New(store, harm.NewAggregator(substance.DefaultRateTable()))

SEE ALSO:
  - harm/store.go: Interface definitions
  - harm/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/harm-index/harm"
)

var _ harm.Store = (*Store)(nil)

// Store implements harm.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.HasPrefix(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return harm.NewStoreError("ping", s.db.PingContext(ctx))
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Substance events (origin points fixed at creation)
	CREATE TABLE IF NOT EXISTS substance_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		category TEXT NOT NULL,
		subtype TEXT NOT NULL DEFAULT '',
		quantity REAL NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		occurred_at TEXT NOT NULL,
		origin_points TEXT, -- NULL: imported without a value
		risk_multiplier REAL NOT NULL DEFAULT 1.0,
		multi_substance INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		deleted_at TEXT
	);

	-- Hot path: full history of one user in chronological order
	CREATE INDEX IF NOT EXISTS idx_substance_events_user_time
		ON substance_events(user_id, occurred_at);

	-- Interventions
	CREATE TABLE IF NOT EXISTS interventions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		magnitude REAL NOT NULL DEFAULT 0,
		quality INTEGER,
		created_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_interventions_user_time
		ON interventions(user_id, occurred_at);

	-- Abstinence breaks
	CREATE TABLE IF NOT EXISTS abstinence_breaks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		scope TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_abstinence_breaks_user
		ON abstinence_breaks(user_id, start_date);

	-- Risk profiles
	CREATE TABLE IF NOT EXISTS risk_profiles (
		user_id TEXT PRIMARY KEY,
		age INTEGER,
		sex TEXT NOT NULL DEFAULT '',
		health_json TEXT NOT NULL DEFAULT '[]',
		psychiatric_json TEXT NOT NULL DEFAULT '[]',
		updated_at TEXT NOT NULL
	);

	-- Daily snapshots (derived cache, one row per user per day)
	CREATE TABLE IF NOT EXISTS harm_snapshots (
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		score TEXT NOT NULL,
		all_time_score TEXT NOT NULL,
		substance_harm TEXT NOT NULL,
		intervention_reduction TEXT NOT NULL,
		decay_reduction TEXT NOT NULL,
		substance_events INTEGER NOT NULL DEFAULT 0,
		interventions INTEGER NOT NULL DEFAULT 0,
		breaks INTEGER NOT NULL DEFAULT 0,
		UNIQUE(user_id, date)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// HISTORY
// =============================================================================

// LoadHistory reads all four collections in one read transaction.
func (s *Store) LoadHistory(ctx context.Context, userID harm.UserID) (harm.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return harm.History{}, harm.NewStoreError("load history", err)
	}
	defer tx.Rollback()

	h := harm.History{UserID: userID}
	if h.Substances, err = querySubstances(ctx, tx, userID); err != nil {
		return harm.History{}, harm.NewStoreError("load substance events", err)
	}
	if h.Interventions, err = queryInterventions(ctx, tx, userID); err != nil {
		return harm.History{}, harm.NewStoreError("load interventions", err)
	}
	if h.Breaks, err = queryBreaks(ctx, tx, userID); err != nil {
		return harm.History{}, harm.NewStoreError("load breaks", err)
	}
	if h.Profile, err = queryProfile(ctx, tx, userID); err != nil {
		return harm.History{}, harm.NewStoreError("load risk profile", err)
	}
	if err := tx.Commit(); err != nil {
		return harm.History{}, harm.NewStoreError("load history", err)
	}
	return h, nil
}

// =============================================================================
// SUBSTANCE EVENTS
// =============================================================================

const substanceColumns = `id, user_id, category, subtype, quantity, context, occurred_at,
	origin_points, risk_multiplier, multi_substance, created_at, deleted_at`

// SaveSubstanceEvent inserts or replaces an event by ID.
func (s *Store) SaveSubstanceEvent(ctx context.Context, e harm.SubstanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO substance_events (` + substanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			subtype = excluded.subtype,
			quantity = excluded.quantity,
			context = excluded.context,
			occurred_at = excluded.occurred_at,
			origin_points = excluded.origin_points,
			risk_multiplier = excluded.risk_multiplier,
			multi_substance = excluded.multi_substance,
			deleted_at = excluded.deleted_at
	`
	_, err := s.db.ExecContext(ctx, query,
		string(e.ID), string(e.UserID), string(e.Category), e.Subtype, e.Quantity, string(e.Context),
		formatTime(e.OccurredAt),
		originColumn(e), e.RiskMultiplier, e.MultiSubstance,
		formatTime(e.CreatedAt), nullTime(e.DeletedAt),
	)
	return harm.NewStoreError("save substance event", err)
}

func (s *Store) GetSubstanceEvent(ctx context.Context, userID harm.UserID, id harm.EventID) (harm.SubstanceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+substanceColumns+` FROM substance_events
		 WHERE user_id = ? AND id = ? AND deleted_at IS NULL`,
		string(userID), string(id))
	if err != nil {
		return harm.SubstanceEvent{}, harm.NewStoreError("get substance event", err)
	}
	events, err := scanSubstances(rows)
	if err != nil {
		return harm.SubstanceEvent{}, harm.NewStoreError("get substance event", err)
	}
	if len(events) == 0 {
		return harm.SubstanceEvent{}, fmt.Errorf("substance event %s: %w", id, harm.ErrNotFound)
	}
	return events[0], nil
}

// DeleteSubstanceEvent soft-deletes a live event.
func (s *Store) DeleteSubstanceEvent(ctx context.Context, userID harm.UserID, id harm.EventID, at time.Time) error {
	return s.softDelete(ctx, "substance_events", "substance event", userID, id, at)
}

func querySubstances(ctx context.Context, q querier, userID harm.UserID) ([]harm.SubstanceEvent, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+substanceColumns+` FROM substance_events
		 WHERE user_id = ? ORDER BY occurred_at ASC, id ASC`,
		string(userID))
	if err != nil {
		return nil, err
	}
	return scanSubstances(rows)
}

func scanSubstances(rows *sql.Rows) ([]harm.SubstanceEvent, error) {
	defer rows.Close()

	var events []harm.SubstanceEvent
	for rows.Next() {
		var (
			e                                harm.SubstanceEvent
			id, userID, category, useContext string
			occurredAt, createdAt            string
			origin, deletedAt                sql.NullString
		)
		if err := rows.Scan(&id, &userID, &category, &e.Subtype, &e.Quantity, &useContext,
			&occurredAt, &origin, &e.RiskMultiplier, &e.MultiSubstance, &createdAt, &deletedAt); err != nil {
			return nil, err
		}
		e.ID = harm.EventID(id)
		e.UserID = harm.UserID(userID)
		e.Category = harm.Category(category)
		e.Context = harm.UseContext(useContext)

		var err error
		if e.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if !origin.Valid {
			e.Unvalued = true
		} else if e.OriginPoints, err = decimal.NewFromString(origin.String); err != nil {
			return nil, fmt.Errorf("event %s origin points %q: %w", id, origin.String, err)
		}
		if e.DeletedAt, err = parseNullTime(deletedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// INTERVENTIONS
// =============================================================================

const interventionColumns = `id, user_id, kind, occurred_at, magnitude, quality, created_at, deleted_at`

func (s *Store) SaveIntervention(ctx context.Context, e harm.InterventionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var quality sql.NullInt64
	if e.Quality != nil {
		quality = sql.NullInt64{Int64: int64(*e.Quality), Valid: true}
	}

	query := `
		INSERT INTO interventions (` + interventionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			occurred_at = excluded.occurred_at,
			magnitude = excluded.magnitude,
			quality = excluded.quality,
			deleted_at = excluded.deleted_at
	`
	_, err := s.db.ExecContext(ctx, query,
		string(e.ID), string(e.UserID), string(e.Kind), formatTime(e.OccurredAt),
		e.Magnitude, quality, formatTime(e.CreatedAt), nullTime(e.DeletedAt),
	)
	return harm.NewStoreError("save intervention", err)
}

func (s *Store) DeleteIntervention(ctx context.Context, userID harm.UserID, id harm.EventID, at time.Time) error {
	return s.softDelete(ctx, "interventions", "intervention", userID, id, at)
}

func queryInterventions(ctx context.Context, q querier, userID harm.UserID) ([]harm.InterventionEvent, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+interventionColumns+` FROM interventions
		 WHERE user_id = ? ORDER BY occurred_at ASC, id ASC`,
		string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []harm.InterventionEvent
	for rows.Next() {
		var (
			e                     harm.InterventionEvent
			id, user, kind        string
			occurredAt, createdAt string
			quality               sql.NullInt64
			deletedAt             sql.NullString
		)
		if err := rows.Scan(&id, &user, &kind, &occurredAt, &e.Magnitude, &quality, &createdAt, &deletedAt); err != nil {
			return nil, err
		}
		e.ID = harm.EventID(id)
		e.UserID = harm.UserID(user)
		e.Kind = harm.InterventionKind(kind)
		if quality.Valid {
			q := int(quality.Int64)
			e.Quality = &q
		}
		if e.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if e.DeletedAt, err = parseNullTime(deletedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// ABSTINENCE BREAKS
// =============================================================================

const breakColumns = `id, user_id, scope, start_date, end_date, status, created_at, deleted_at`

func (s *Store) SaveBreak(ctx context.Context, b harm.AbstinenceBreak) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var end sql.NullString
	if b.End != nil {
		end = sql.NullString{String: b.End.String(), Valid: true}
	}

	query := `
		INSERT INTO abstinence_breaks (` + breakColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scope = excluded.scope,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			status = excluded.status,
			deleted_at = excluded.deleted_at
	`
	_, err := s.db.ExecContext(ctx, query,
		string(b.ID), string(b.UserID), string(b.Scope), b.Start.String(), end,
		string(b.Status), formatTime(b.CreatedAt), nullTime(b.DeletedAt),
	)
	return harm.NewStoreError("save break", err)
}

func (s *Store) GetBreak(ctx context.Context, userID harm.UserID, id harm.EventID) (harm.AbstinenceBreak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+breakColumns+` FROM abstinence_breaks
		 WHERE user_id = ? AND id = ? AND deleted_at IS NULL`,
		string(userID), string(id))
	if err != nil {
		return harm.AbstinenceBreak{}, harm.NewStoreError("get break", err)
	}
	breaks, err := scanBreaks(rows)
	if err != nil {
		return harm.AbstinenceBreak{}, harm.NewStoreError("get break", err)
	}
	if len(breaks) == 0 {
		return harm.AbstinenceBreak{}, fmt.Errorf("break %s: %w", id, harm.ErrNotFound)
	}
	return breaks[0], nil
}

func (s *Store) DeleteBreak(ctx context.Context, userID harm.UserID, id harm.EventID, at time.Time) error {
	return s.softDelete(ctx, "abstinence_breaks", "break", userID, id, at)
}

func queryBreaks(ctx context.Context, q querier, userID harm.UserID) ([]harm.AbstinenceBreak, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+breakColumns+` FROM abstinence_breaks
		 WHERE user_id = ? ORDER BY start_date ASC, id ASC`,
		string(userID))
	if err != nil {
		return nil, err
	}
	return scanBreaks(rows)
}

func scanBreaks(rows *sql.Rows) ([]harm.AbstinenceBreak, error) {
	defer rows.Close()

	var breaks []harm.AbstinenceBreak
	for rows.Next() {
		var (
			b                              harm.AbstinenceBreak
			id, user, scope, start, status string
			createdAt                      string
			end, deletedAt                 sql.NullString
		)
		if err := rows.Scan(&id, &user, &scope, &start, &end, &status, &createdAt, &deletedAt); err != nil {
			return nil, err
		}
		b.ID = harm.EventID(id)
		b.UserID = harm.UserID(user)
		b.Scope = harm.Category(scope)
		b.Status = harm.BreakStatus(status)

		var err error
		if b.Start, err = harm.ParseDate(start); err != nil {
			return nil, err
		}
		if end.Valid {
			d, err := harm.ParseDate(end.String)
			if err != nil {
				return nil, err
			}
			b.End = &d
		}
		if b.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if b.DeletedAt, err = parseNullTime(deletedAt); err != nil {
			return nil, err
		}
		breaks = append(breaks, b)
	}
	return breaks, rows.Err()
}

// =============================================================================
// RISK PROFILES & USERS
// =============================================================================

func (s *Store) SaveRiskProfile(ctx context.Context, p harm.UserRiskProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	health, err := json.Marshal(nonNil(p.HealthConditions))
	if err != nil {
		return fmt.Errorf("encode health conditions: %w", err)
	}
	psych, err := json.Marshal(nonNil(p.PsychiatricConditions))
	if err != nil {
		return fmt.Errorf("encode psychiatric conditions: %w", err)
	}
	var age sql.NullInt64
	if p.Age != nil {
		age = sql.NullInt64{Int64: int64(*p.Age), Valid: true}
	}

	query := `
		INSERT INTO risk_profiles (user_id, age, sex, health_json, psychiatric_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			age = excluded.age,
			sex = excluded.sex,
			health_json = excluded.health_json,
			psychiatric_json = excluded.psychiatric_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		string(p.UserID), age, string(p.Sex), string(health), string(psych), formatTime(p.UpdatedAt))
	return harm.NewStoreError("save risk profile", err)
}

func queryProfile(ctx context.Context, q querier, userID harm.UserID) (*harm.UserRiskProfile, error) {
	var (
		p                          harm.UserRiskProfile
		age                        sql.NullInt64
		sex, health, psych, update string
	)
	err := q.QueryRowContext(ctx,
		`SELECT age, sex, health_json, psychiatric_json, updated_at FROM risk_profiles WHERE user_id = ?`,
		string(userID),
	).Scan(&age, &sex, &health, &psych, &update)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.UserID = userID
	p.Sex = harm.Sex(sex)
	if age.Valid {
		a := int(age.Int64)
		p.Age = &a
	}
	if err := json.Unmarshal([]byte(health), &p.HealthConditions); err != nil {
		return nil, fmt.Errorf("decode health conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(psych), &p.PsychiatricConditions); err != nil {
		return nil, fmt.Errorf("decode psychiatric conditions: %w", err)
	}
	if p.UpdatedAt, err = parseTime(update); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListUsers returns every user with at least one record.
func (s *Store) ListUsers(ctx context.Context) ([]harm.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM substance_events
		UNION SELECT user_id FROM interventions
		UNION SELECT user_id FROM abstinence_breaks
		UNION SELECT user_id FROM risk_profiles
		ORDER BY user_id
	`)
	if err != nil {
		return nil, harm.NewStoreError("list users", err)
	}
	defer rows.Close()

	var users []harm.UserID
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, harm.NewStoreError("list users", err)
		}
		users = append(users, harm.UserID(u))
	}
	return users, harm.NewStoreError("list users", rows.Err())
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

const snapshotColumns = `user_id, date, score, all_time_score, substance_harm,
	intervention_reduction, decay_reduction, substance_events, interventions, breaks`

// UpsertSnapshot writes the row for (UserID, Date), updating it if present.
func (s *Store) UpsertSnapshot(ctx context.Context, snap harm.HarmSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO harm_snapshots (` + snapshotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			score = excluded.score,
			all_time_score = excluded.all_time_score,
			substance_harm = excluded.substance_harm,
			intervention_reduction = excluded.intervention_reduction,
			decay_reduction = excluded.decay_reduction,
			substance_events = excluded.substance_events,
			interventions = excluded.interventions,
			breaks = excluded.breaks
	`
	_, err := s.db.ExecContext(ctx, query,
		string(snap.UserID), snap.Date.String(),
		snap.Score.StringFixed(2),
		snap.AllTimeScore.StringFixed(2),
		snap.SubstanceHarm.StringFixed(2),
		snap.InterventionReduction.StringFixed(2),
		snap.DecayReduction.StringFixed(2),
		snap.Factors.SubstanceEvents, snap.Factors.Interventions, snap.Factors.Breaks,
	)
	return harm.NewStoreError("upsert snapshot", err)
}

// GetSnapshot returns nil, nil when no row exists.
func (s *Store) GetSnapshot(ctx context.Context, userID harm.UserID, date harm.Date) (*harm.HarmSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM harm_snapshots WHERE user_id = ? AND date = ?`,
		string(userID), date.String())
	if err != nil {
		return nil, harm.NewStoreError("get snapshot", err)
	}
	snaps, err := scanSnapshots(rows)
	if err != nil {
		return nil, harm.NewStoreError("get snapshot", err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

// ListSnapshots returns rows in [from, to] ordered by date.
func (s *Store) ListSnapshots(ctx context.Context, userID harm.UserID, from, to harm.Date) ([]harm.HarmSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM harm_snapshots
		 WHERE user_id = ? AND date >= ? AND date <= ? ORDER BY date ASC`,
		string(userID), from.String(), to.String())
	if err != nil {
		return nil, harm.NewStoreError("list snapshots", err)
	}
	snaps, err := scanSnapshots(rows)
	return snaps, harm.NewStoreError("list snapshots", err)
}

// RawSnapshotRow returns the stored text of a snapshot row, column by column.
// Used to verify that recomputes are byte-identical.
func (s *Store) RawSnapshotRow(ctx context.Context, userID harm.UserID, date harm.Date) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c [10]string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, date, score, all_time_score, substance_harm, intervention_reduction,
			decay_reduction, CAST(substance_events AS TEXT), CAST(interventions AS TEXT), CAST(breaks AS TEXT)
		 FROM harm_snapshots WHERE user_id = ? AND date = ?`,
		string(userID), date.String(),
	).Scan(&c[0], &c[1], &c[2], &c[3], &c[4], &c[5], &c[6], &c[7], &c[8], &c[9])
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot %s/%s: %w", userID, date, harm.ErrNotFound)
	}
	if err != nil {
		return nil, harm.NewStoreError("raw snapshot", err)
	}
	return c[:], nil
}

func scanSnapshots(rows *sql.Rows) ([]harm.HarmSnapshot, error) {
	defer rows.Close()

	var snaps []harm.HarmSnapshot
	for rows.Next() {
		var (
			snap                                harm.HarmSnapshot
			userID, date                        string
			score, allTime, harmAmt, red, decay string
		)
		if err := rows.Scan(&userID, &date, &score, &allTime, &harmAmt, &red, &decay,
			&snap.Factors.SubstanceEvents, &snap.Factors.Interventions, &snap.Factors.Breaks); err != nil {
			return nil, err
		}
		snap.UserID = harm.UserID(userID)

		var err error
		if snap.Date, err = harm.ParseDate(date); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&snap.Score, score},
			{&snap.AllTimeScore, allTime},
			{&snap.SubstanceHarm, harmAmt},
			{&snap.InterventionReduction, red},
			{&snap.DecayReduction, decay},
		} {
			if *f.dst, err = decimal.NewFromString(f.src); err != nil {
				return nil, fmt.Errorf("snapshot %s/%s: %w", userID, date, err)
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// softDelete marks a live row deleted. table is always a package constant.
func (s *Store) softDelete(ctx context.Context, table, noun string, userID harm.UserID, id harm.EventID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET deleted_at = ? WHERE user_id = ? AND id = ? AND deleted_at IS NULL`,
		formatTime(at), string(userID), string(id))
	if err != nil {
		return harm.NewStoreError("delete "+noun, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return harm.NewStoreError("delete "+noun, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", noun, id, harm.ErrNotFound)
	}
	return nil
}

// Reset deletes every row. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"substance_events", "interventions", "abstinence_breaks", "risk_profiles", "harm_snapshots"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return harm.NewStoreError("reset "+table, err)
		}
	}
	return nil
}

// originColumn stores NULL for Unvalued rows so a real 0.00 stays distinct.
func originColumn(e harm.SubstanceEvent) sql.NullString {
	if e.Unvalued {
		return sql.NullString{}
	}
	return sql.NullString{String: e.OriginPoints.StringFixed(2), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
