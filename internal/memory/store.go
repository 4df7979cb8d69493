// Package memory implements the persistent, self-improving memory shared
// across debate runs: lessons, calibrated forecasts, and per-expert
// performance aggregates.
package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alienxp03/thinktank/internal/core"
)

// DefaultLessonLimit bounds how many lessons are injected into a debate.
const DefaultLessonLimit = 20

// Store is the process-wide memory store. Reads may run concurrently;
// the post-debate write batch and forecast resolution hold a single
// writer lock so counters stay monotonic and forecast ids stay unique.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (creating if needed) a memory store at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create memory directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to memory store: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS lessons (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		text TEXT NOT NULL,
		confidence REAL NOT NULL,
		source_debate TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS forecasts (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		probability REAL NOT NULL,
		deadline TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'pending',
		outcome INTEGER,
		brier REAL,
		expert_id TEXT NOT NULL,
		source_debate TEXT NOT NULL,
		source_claim_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		resolved_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS performance (
		expert_id TEXT PRIMARY KEY,
		debates INTEGER NOT NULL DEFAULT 0,
		total_claims INTEGER NOT NULL DEFAULT 0,
		mean_confidence REAL NOT NULL DEFAULT 0,
		challenges_made INTEGER NOT NULL DEFAULT 0,
		challenges_received INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_lessons_created_at ON lessons(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_forecasts_state ON forecasts(state);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create memory schema: %w", err)
	}
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListLessons returns all lessons, most recent first (ties by id).
func (s *Store) ListLessons() ([]core.Lesson, error) {
	rows, err := s.db.Query(`
		SELECT id, category, text, confidence, source_debate, created_at
		FROM lessons
		ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	defer rows.Close()

	var lessons []core.Lesson
	for rows.Next() {
		var l core.Lesson
		if err := rows.Scan(&l.ID, &l.Category, &l.Text, &l.Confidence, &l.SourceDebate, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}

// RelevantLessons returns a bounded, relevance-ranked subset of lessons
// for injection into a debate. Lessons sharing a keyword with the debate
// context rank before those that don't; each group stays in
// most-recent-first order. The ranking is deterministic so replayed runs
// see the same context.
func (s *Store) RelevantLessons(contextText string, limit int) ([]core.Lesson, error) {
	if limit <= 0 {
		limit = DefaultLessonLimit
	}

	all, err := s.ListLessons()
	if err != nil {
		return nil, err
	}

	keywords := extractKeywords(contextText)
	var matched, rest []core.Lesson
	for _, l := range all {
		if lessonMatches(l, keywords) {
			matched = append(matched, l)
		} else {
			rest = append(rest, l)
		}
	}

	ranked := append(matched, rest...)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// ListForecasts returns all forecasts, pending first, then by creation.
func (s *Store) ListForecasts() ([]core.Forecast, error) {
	rows, err := s.db.Query(`
		SELECT id, text, probability, deadline, state, outcome, brier,
		       expert_id, source_debate, source_claim_id, created_at, resolved_at
		FROM forecasts
		ORDER BY state = 'pending' DESC, created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list forecasts: %w", err)
	}
	defer rows.Close()

	var forecasts []core.Forecast
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, err
		}
		forecasts = append(forecasts, *f)
	}
	return forecasts, rows.Err()
}

// GetForecast returns one forecast by id, or nil if absent.
func (s *Store) GetForecast(id string) (*core.Forecast, error) {
	row := s.db.QueryRow(`
		SELECT id, text, probability, deadline, state, outcome, brier,
		       expert_id, source_debate, source_claim_id, created_at, resolved_at
		FROM forecasts WHERE id = ?
	`, id)
	f, err := scanForecast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// ResolveForecast resolves a pending forecast against a real outcome and
// fixes its Brier contribution (p - outcome)^2. Resolving a forecast
// that is no longer pending fails with core.ErrAlreadyResolved and
// changes nothing.
func (s *Store) ResolveForecast(id string, outcome bool) (*core.Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.GetForecast(id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrForecastNotFound, id)
	}
	if f.State != core.ForecastPending {
		return nil, core.ErrAlreadyResolved
	}

	actual := 0.0
	state := core.ForecastResolvedNo
	if outcome {
		actual = 1.0
		state = core.ForecastResolvedYes
	}
	brier := (f.Probability - actual) * (f.Probability - actual)
	now := time.Now().UTC()

	_, err = s.db.Exec(`
		UPDATE forecasts
		SET state = ?, outcome = ?, brier = ?, resolved_at = ?
		WHERE id = ? AND state = 'pending'
	`, state, outcome, brier, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forecast: %w", err)
	}

	f.State = state
	f.Outcome = &outcome
	f.Brier = &brier
	f.ResolvedAt = &now
	return f, nil
}

// BrierSummary returns the mean Brier contribution over all resolved
// forecasts, plus per-expert means. ok is false when nothing is resolved.
func (s *Store) BrierSummary() (mean float64, perExpert map[string]float64, ok bool, err error) {
	forecasts, err := s.ListForecasts()
	if err != nil {
		return 0, nil, false, err
	}

	sum := 0.0
	n := 0
	expertSum := make(map[string]float64)
	expertN := make(map[string]int)
	for _, f := range forecasts {
		if f.Brier == nil {
			continue
		}
		sum += *f.Brier
		n++
		expertSum[f.ExpertID] += *f.Brier
		expertN[f.ExpertID]++
	}
	if n == 0 {
		return 0, nil, false, nil
	}

	perExpert = make(map[string]float64, len(expertSum))
	for id, total := range expertSum {
		perExpert[id] = total / float64(expertN[id])
	}
	return sum / float64(n), perExpert, true, nil
}

// Performance returns all per-expert aggregates, ordered by expert id.
func (s *Store) Performance() ([]core.ExpertPerformance, error) {
	rows, err := s.db.Query(`
		SELECT expert_id, debates, total_claims, mean_confidence, challenges_made, challenges_received
		FROM performance
		ORDER BY expert_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list performance: %w", err)
	}
	defer rows.Close()

	var records []core.ExpertPerformance
	for rows.Next() {
		var p core.ExpertPerformance
		if err := rows.Scan(&p.ExpertID, &p.Debates, &p.TotalClaims, &p.MeanConfidence, &p.ChallengesMade, &p.ChallengesReceived); err != nil {
			return nil, fmt.Errorf("failed to scan performance: %w", err)
		}
		records = append(records, p)
	}
	return records, rows.Err()
}

// CommitBatch applies one debate's memory effects in a single
// transaction under the writer lock: either every lesson, forecast, and
// performance update lands, or none do.
func (s *Store) CommitBatch(b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin memory batch: %w", err)
	}
	defer tx.Rollback()

	for _, l := range b.Lessons {
		_, err := tx.Exec(`
			INSERT INTO lessons (id, category, text, confidence, source_debate, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, l.ID, l.Category, l.Text, l.Confidence, l.SourceDebate, l.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert lesson: %w", err)
		}
	}

	for _, f := range b.Forecasts {
		_, err := tx.Exec(`
			INSERT INTO forecasts (id, text, probability, deadline, state, expert_id,
			                       source_debate, source_claim_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, f.ID, f.Text, f.Probability, f.Deadline, f.State, f.ExpertID,
			f.SourceDebate, f.SourceClaimID, f.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert forecast: %w", err)
		}
	}

	for _, d := range b.Perf {
		if err := applyPerfDelta(tx, d); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit memory batch: %w", err)
	}
	return nil
}

// applyPerfDelta folds one expert's per-debate counters into their
// lifetime aggregate. Mean confidence uses an incremental average over
// total claim count.
func applyPerfDelta(tx *sql.Tx, d PerfDelta) error {
	var (
		debates, claims, made, received int
		mean                            float64
	)
	err := tx.QueryRow(`
		SELECT debates, total_claims, mean_confidence, challenges_made, challenges_received
		FROM performance WHERE expert_id = ?
	`, d.ExpertID).Scan(&debates, &claims, &mean, &made, &received)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read performance for %s: %w", d.ExpertID, err)
	}

	newClaims := claims + d.Claims
	newMean := mean
	if newClaims > 0 {
		newMean = (mean*float64(claims) + d.ConfidenceSum) / float64(newClaims)
	}

	_, err = tx.Exec(`
		INSERT INTO performance (expert_id, debates, total_claims, mean_confidence, challenges_made, challenges_received)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(expert_id) DO UPDATE SET
			debates = excluded.debates,
			total_claims = excluded.total_claims,
			mean_confidence = excluded.mean_confidence,
			challenges_made = excluded.challenges_made,
			challenges_received = excluded.challenges_received
	`, d.ExpertID, debates+1, newClaims, newMean, made+d.ChallengesMade, received+d.ChallengesReceived)
	if err != nil {
		return fmt.Errorf("failed to update performance for %s: %w", d.ExpertID, err)
	}
	return nil
}

// ImportBootstrap seeds the store with lessons from a JSON file, skipping
// ids that already exist. Used for cold start.
func (s *Store) ImportBootstrap(lessons []core.Lesson) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin bootstrap import: %w", err)
	}
	defer tx.Rollback()

	imported := 0
	for _, l := range lessons {
		res, err := tx.Exec(`
			INSERT OR IGNORE INTO lessons (id, category, text, confidence, source_debate, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, l.ID, l.Category, l.Text, l.Confidence, l.SourceDebate, l.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("failed to import bootstrap lesson: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bootstrap import: %w", err)
	}
	return imported, nil
}

// DefaultDBPath returns the default memory store path.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "thinktank.db"
	}
	return filepath.Join(home, ".thinktank", "memory.db")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanForecast(row rowScanner) (*core.Forecast, error) {
	var (
		f          core.Forecast
		outcome    sql.NullBool
		brier      sql.NullFloat64
		resolvedAt sql.NullTime
	)
	err := row.Scan(&f.ID, &f.Text, &f.Probability, &f.Deadline, &f.State,
		&outcome, &brier, &f.ExpertID, &f.SourceDebate, &f.SourceClaimID,
		&f.CreatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan forecast: %w", err)
	}
	if outcome.Valid {
		f.Outcome = &outcome.Bool
	}
	if brier.Valid {
		f.Brier = &brier.Float64
	}
	if resolvedAt.Valid {
		f.ResolvedAt = &resolvedAt.Time
	}
	return &f, nil
}

func extractKeywords(text string) map[string]bool {
	keywords := make(map[string]bool)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(word) >= 4 {
			keywords[word] = true
		}
	}
	return keywords
}

func lessonMatches(l core.Lesson, keywords map[string]bool) bool {
	if len(keywords) == 0 {
		return false
	}
	words := strings.FieldsFunc(strings.ToLower(l.Text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	for _, w := range words {
		if keywords[w] {
			return true
		}
	}
	return false
}
