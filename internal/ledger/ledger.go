// Package ledger is the durable record of trade plans, tranches, orders, and
// realized P&L. Orders are append-only; tranche status is the single source of
// truth the scheduler resumes from after a restart.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"BitcoinSentinel/internal/model"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("ledger: not found")

// Ledger wraps the SQLite database holding all durable trading state.
type Ledger struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// Open opens (or creates) the ledger database and runs migrations. Use
// ":memory:" for tests.
func Open(dbPath string, log zerolog.Logger) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL keeps status queries consistent while the scheduler writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	l := &Ledger{db: db, log: log.With().Str("component", "ledger").Logger()}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	l.log.Info().Str("path", dbPath).Msg("ledger opened")
	return l, nil
}

func (l *Ledger) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trade_plans (
			id              TEXT PRIMARY KEY,
			scenario_id     TEXT NOT NULL,
			combined_score  REAL NOT NULL,
			position_size   REAL NOT NULL,
			portfolio_value REAL NOT NULL,
			created_at      INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tranches (
			key          TEXT PRIMARY KEY,
			plan_id      TEXT NOT NULL REFERENCES trade_plans(id),
			seq          INTEGER NOT NULL,
			scheduled_at INTEGER NOT NULL,
			fraction     REAL NOT NULL,
			notional     REAL NOT NULL,
			status       TEXT NOT NULL,
			reason       TEXT NOT NULL DEFAULT '',
			updated_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tranches_status ON tranches(status, scheduled_at)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			tranche_key       TEXT NOT NULL REFERENCES tranches(key),
			side              TEXT NOT NULL,
			notional          REAL NOT NULL,
			order_type        TEXT NOT NULL,
			exchange_order_id TEXT NOT NULL DEFAULT '',
			fill_price        REAL NOT NULL DEFAULT 0,
			fill_qty          REAL NOT NULL DEFAULT 0,
			status            TEXT NOT NULL,
			reason            TEXT NOT NULL DEFAULT '',
			created_at        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_tranche ON orders(tranche_key, id)`,

		`CREATE TABLE IF NOT EXISTS realized_pnl (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			closed_at INTEGER NOT NULL,
			pnl       REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pnl_ts ON realized_pnl(closed_at)`,

		`CREATE TABLE IF NOT EXISTS safety_state (
			id                 INTEGER PRIMARY KEY CHECK (id = 1),
			day                TEXT NOT NULL,
			daily_pnl          REAL NOT NULL,
			consecutive_losses INTEGER NOT NULL,
			halted             INTEGER NOT NULL,
			halt_reason        TEXT NOT NULL DEFAULT '',
			last_evaluated     INTEGER NOT NULL,
			updated_at         INTEGER NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := l.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// InsertPlan stores a plan and its tranches in one transaction. Re-inserting
// an existing plan id is a no-op, which makes post-crash regeneration safe.
func (l *Ledger) InsertPlan(p *model.TradePlan) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT OR IGNORE INTO trade_plans
		(id, scenario_id, combined_score, position_size, portfolio_value, created_at)
		VALUES (?,?,?,?,?,?)`,
		p.ID, p.ScenarioID, p.CombinedScore, p.PositionSize, p.PortfolioValue, p.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		l.log.Info().Str("plan", p.ID).Msg("plan already recorded, skipping insert")
		return tx.Commit()
	}

	now := time.Now().Unix()
	for _, t := range p.Tranches {
		if _, err := tx.Exec(`INSERT INTO tranches
			(key, plan_id, seq, scheduled_at, fraction, notional, status, updated_at)
			VALUES (?,?,?,?,?,?,?,?)`,
			t.Key, t.PlanID, t.Seq, t.ScheduledAt.Unix(), t.Fraction, t.Notional,
			string(model.TranchePending), now); err != nil {
			return fmt.Errorf("insert tranche %s: %w", t.Key, err)
		}
	}
	return tx.Commit()
}

// HasOpenPlan reports whether the scenario already has a plan with
// non-terminal tranches.
func (l *Ledger) HasOpenPlan(scenarioID string) (bool, error) {
	var n int
	err := l.db.QueryRow(`SELECT COUNT(1) FROM tranches t
		JOIN trade_plans p ON p.id = t.plan_id
		WHERE p.scenario_id = ? AND t.status IN (?, ?)`,
		scenarioID, string(model.TranchePending), string(model.TrancheExecuting)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("open plan query: %w", err)
	}
	return n > 0, nil
}

// LastPlanCreated returns the creation time of the scenario's most recent
// plan, or ErrNotFound when the scenario never triggered.
func (l *Ledger) LastPlanCreated(scenarioID string) (time.Time, error) {
	var created int64
	err := l.db.QueryRow(`SELECT created_at FROM trade_plans
		WHERE scenario_id = ? ORDER BY created_at DESC LIMIT 1`, scenarioID).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last plan created: %w", err)
	}
	return time.Unix(created, 0), nil
}

// OpenPlans returns every plan that still has non-terminal tranches, with all
// of its tranches attached.
func (l *Ledger) OpenPlans() ([]*model.TradePlan, error) {
	rows, err := l.db.Query(`SELECT DISTINCT p.id, p.scenario_id, p.combined_score,
		p.position_size, p.portfolio_value, p.created_at
		FROM trade_plans p JOIN tranches t ON t.plan_id = p.id
		WHERE t.status IN (?, ?) ORDER BY p.created_at`,
		string(model.TranchePending), string(model.TrancheExecuting))
	if err != nil {
		return nil, fmt.Errorf("open plans: %w", err)
	}
	defer rows.Close()

	var plans []*model.TradePlan
	for rows.Next() {
		var p model.TradePlan
		var created int64
		if err := rows.Scan(&p.ID, &p.ScenarioID, &p.CombinedScore,
			&p.PositionSize, &p.PortfolioValue, &created); err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(created, 0)
		plans = append(plans, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range plans {
		tranches, err := l.queryTranches(`SELECT key, plan_id, seq, scheduled_at, fraction, notional, status, reason
			FROM tranches WHERE plan_id = ? ORDER BY seq`, p.ID)
		if err != nil {
			return nil, err
		}
		p.Tranches = tranches
	}
	return plans, nil
}

// DuePending returns pending tranches whose scheduled time has elapsed.
func (l *Ledger) DuePending(now time.Time) ([]model.Tranche, error) {
	return l.queryTranches(`SELECT key, plan_id, seq, scheduled_at, fraction, notional, status, reason
		FROM tranches WHERE status = ? AND scheduled_at <= ? ORDER BY scheduled_at, seq`,
		string(model.TranchePending), now.Unix())
}

// Executing returns tranches stuck in the executing state, used for restart
// recovery.
func (l *Ledger) Executing() ([]model.Tranche, error) {
	return l.queryTranches(`SELECT key, plan_id, seq, scheduled_at, fraction, notional, status, reason
		FROM tranches WHERE status = ? ORDER BY scheduled_at, seq`,
		string(model.TrancheExecuting))
}

// Open returns all non-terminal tranches for status reporting.
func (l *Ledger) Open() ([]model.Tranche, error) {
	return l.queryTranches(`SELECT key, plan_id, seq, scheduled_at, fraction, notional, status, reason
		FROM tranches WHERE status IN (?, ?) ORDER BY scheduled_at, seq`,
		string(model.TranchePending), string(model.TrancheExecuting))
}

// Claim atomically moves a tranche from pending to executing. It returns
// false when another instance already claimed it or the tranche left the
// pending state. The claim is the commit point: it is durable before any
// exchange call is made.
func (l *Ledger) Claim(key string, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.Exec(`UPDATE tranches SET status = ?, updated_at = ?
		WHERE key = ? AND status = ?`,
		string(model.TrancheExecuting), now.Unix(), key, string(model.TranchePending))
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release returns an executing tranche to pending so it re-enters the normal
// scan and authorization path. Used for transient pre-trade failures and for
// restart recovery of tranches that never reached submission.
func (l *Ledger) Release(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.Exec(`UPDATE tranches SET status = ?, updated_at = ?
		WHERE key = ? AND status = ?`,
		string(model.TranchePending), time.Now().Unix(), key, string(model.TrancheExecuting))
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("release %s: tranche not in executing state", key)
	}
	return nil
}

// RecordSubmitted appends the order row for a submission that reached the
// exchange, so the exchange order id survives a crash before the fill lands.
func (l *Ledger) RecordSubmitted(key string, o model.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(`INSERT INTO orders
		(tranche_key, side, notional, order_type, exchange_order_id, status, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		key, string(o.Side), o.Notional, string(o.Type), o.ExchangeOrderID,
		string(model.OrderSubmitted), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record submitted %s: %w", key, err)
	}
	return nil
}

// RecordFill marks the tranche filled and appends the fill order row in one
// transaction.
func (l *Ledger) RecordFill(key string, o model.Order) error {
	return l.finalize(key, model.TrancheFilled, "", model.Order{
		Side: o.Side, Notional: o.Notional, Type: o.Type,
		ExchangeOrderID: o.ExchangeOrderID, FillPrice: o.FillPrice, FillQty: o.FillQty,
		Status: model.OrderFilled,
	})
}

// RecordSkip marks the tranche skipped with the denial reason. Skips never
// retry; the rest of the plan continues.
func (l *Ledger) RecordSkip(key string, reason model.DenialReason, o model.Order) error {
	o.Status = model.OrderSkipped
	o.Reason = string(reason)
	return l.finalize(key, model.TrancheSkipped, string(reason), o)
}

// RecordFailure marks the tranche failed after retries were exhausted or the
// exchange permanently rejected the order.
func (l *Ledger) RecordFailure(key string, reason string, o model.Order) error {
	o.Status = model.OrderFailed
	o.Reason = reason
	return l.finalize(key, model.TrancheFailed, reason, o)
}

func (l *Ledger) finalize(key string, status model.TrancheStatus, reason string, o model.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE tranches SET status = ?, reason = ?, updated_at = ?
		WHERE key = ? AND status = ?`,
		string(status), reason, time.Now().Unix(), key, string(model.TrancheExecuting))
	if err != nil {
		return fmt.Errorf("finalize %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finalize %s to %s: tranche not in executing state", key, status)
	}

	if _, err := tx.Exec(`INSERT INTO orders
		(tranche_key, side, notional, order_type, exchange_order_id, fill_price, fill_qty, status, reason, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		key, string(o.Side), o.Notional, string(o.Type), o.ExchangeOrderID,
		o.FillPrice, o.FillQty, string(o.Status), o.Reason, time.Now().Unix()); err != nil {
		return fmt.Errorf("append order for %s: %w", key, err)
	}
	return tx.Commit()
}

// LatestOrder returns the most recent order row for a tranche, or ErrNotFound.
func (l *Ledger) LatestOrder(key string) (*model.Order, error) {
	row := l.db.QueryRow(`SELECT id, tranche_key, side, notional, order_type,
		exchange_order_id, fill_price, fill_qty, status, reason, created_at
		FROM orders WHERE tranche_key = ? ORDER BY id DESC LIMIT 1`, key)

	var o model.Order
	var side, typ, status string
	var created int64
	err := row.Scan(&o.ID, &o.TrancheKey, &side, &o.Notional, &typ,
		&o.ExchangeOrderID, &o.FillPrice, &o.FillQty, &status, &o.Reason, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest order %s: %w", key, err)
	}
	o.Side, o.Type, o.Status = model.Side(side), model.OrderType(typ), model.OrderStatus(status)
	o.CreatedAt = time.Unix(created, 0)
	return &o, nil
}

// RecordRealized appends a realized P&L entry for a closed position.
func (l *Ledger) RecordRealized(pnl float64, closedAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(`INSERT INTO realized_pnl (closed_at, pnl) VALUES (?,?)`,
		closedAt.Unix(), pnl)
	if err != nil {
		return fmt.Errorf("record realized pnl: %w", err)
	}
	return nil
}

// DailyPnL sums realized P&L since UTC midnight of the given day.
func (l *Ledger) DailyPnL(day time.Time) (float64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	var sum float64
	err := l.db.QueryRow(`SELECT COALESCE(SUM(pnl), 0) FROM realized_pnl
		WHERE closed_at >= ? AND closed_at < ?`,
		start.Unix(), start.Add(24*time.Hour).Unix()).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("daily pnl: %w", err)
	}
	return sum, nil
}

// ConsecutiveLosses counts the unbroken run of losing closed positions,
// newest first.
func (l *Ledger) ConsecutiveLosses() (int, error) {
	rows, err := l.db.Query(`SELECT pnl FROM realized_pnl ORDER BY id DESC LIMIT 50`)
	if err != nil {
		return 0, fmt.Errorf("consecutive losses: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var pnl float64
		if err := rows.Scan(&pnl); err != nil {
			return 0, err
		}
		if pnl >= 0 {
			break
		}
		count++
	}
	return count, rows.Err()
}

// OpenExposure sums the notional of filled and executing tranches. In-flight
// claims count as exposure so two tranches cannot be authorized into the same
// headroom; excludeKey removes the requesting tranche itself, which is already
// claimed by the time it is authorized. Exits are out of scope for the core,
// so fills accumulate until positions are closed through RecordRealized by
// outer tooling.
func (l *Ledger) OpenExposure(excludeKey string) (float64, error) {
	var sum float64
	err := l.db.QueryRow(`SELECT COALESCE(SUM(notional), 0) FROM tranches
		WHERE status IN (?, ?) AND key != ?`,
		string(model.TrancheFilled), string(model.TrancheExecuting), excludeKey).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("open exposure: %w", err)
	}
	return sum, nil
}

// FilledNotional sums filled tranche notionals for one plan.
func (l *Ledger) FilledNotional(planID string) (float64, error) {
	var sum float64
	err := l.db.QueryRow(`SELECT COALESCE(SUM(notional), 0) FROM tranches
		WHERE plan_id = ? AND status = ?`, planID, string(model.TrancheFilled)).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("filled notional: %w", err)
	}
	return sum, nil
}

// LoadSafetyState reads the persisted safety state, or returns a zero state
// for a fresh database.
func (l *Ledger) LoadSafetyState() (*model.SafetyState, error) {
	row := l.db.QueryRow(`SELECT day, daily_pnl, consecutive_losses, halted, halt_reason,
		last_evaluated, updated_at FROM safety_state WHERE id = 1`)

	var s model.SafetyState
	var halted int
	var lastEval, updated int64
	err := row.Scan(&s.Day, &s.DailyPnL, &s.ConsecutiveLosses, &halted, &s.HaltReason, &lastEval, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.SafetyState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load safety state: %w", err)
	}
	s.Halted = halted == 1
	s.LastEvaluated = time.Unix(lastEval, 0)
	s.UpdatedAt = time.Unix(updated, 0)
	return &s, nil
}

// SaveSafetyState upserts the single safety state row.
func (l *Ledger) SaveSafetyState(s *model.SafetyState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	halted := 0
	if s.Halted {
		halted = 1
	}
	_, err := l.db.Exec(`INSERT INTO safety_state
		(id, day, daily_pnl, consecutive_losses, halted, halt_reason, last_evaluated, updated_at)
		VALUES (1,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			day = excluded.day,
			daily_pnl = excluded.daily_pnl,
			consecutive_losses = excluded.consecutive_losses,
			halted = excluded.halted,
			halt_reason = excluded.halt_reason,
			last_evaluated = excluded.last_evaluated,
			updated_at = excluded.updated_at`,
		s.Day, s.DailyPnL, s.ConsecutiveLosses, halted, s.HaltReason,
		s.LastEvaluated.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save safety state: %w", err)
	}
	return nil
}

func (l *Ledger) queryTranches(query string, args ...any) ([]model.Tranche, error) {
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tranches: %w", err)
	}
	defer rows.Close()

	var out []model.Tranche
	for rows.Next() {
		var t model.Tranche
		var status string
		var scheduled int64
		if err := rows.Scan(&t.Key, &t.PlanID, &t.Seq, &scheduled, &t.Fraction,
			&t.Notional, &status, &t.Reason); err != nil {
			return nil, err
		}
		t.Status = model.TrancheStatus(status)
		t.ScheduledAt = time.Unix(scheduled, 0)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	l.log.Info().Msg("closing ledger")
	return l.db.Close()
}
