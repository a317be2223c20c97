package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/subhub"
	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/schedule"
	"github.com/xraph/subhub/service"
	subhubstore "github.com/xraph/subhub/store"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/types"
)

// compile-time interface check
var _ subhubstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("subhub/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("subhub/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Service Store ====================

func (s *Store) SaveService(ctx context.Context, svc *service.Service) error {
	m := toServiceModel(svc)
	_, err := s.pg.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("receiver = EXCLUDED.receiver").
		Set("asset = EXCLUDED.asset").
		Set("amount = EXCLUDED.amount").
		Set("version = EXCLUDED.version").
		Set("active = EXCLUDED.active").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetService(ctx context.Context, serviceID service.ID) (*service.Service, error) {
	m := new(serviceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", serviceID.Hex()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, subhub.ErrServiceNotFound
		}
		return nil, err
	}
	return fromServiceModel(m)
}

func (s *Store) ListServices(ctx context.Context, proposer common.Address) ([]*service.Service, error) {
	var models []serviceModel
	err := s.pg.NewSelect(&models).
		Where("proposer = $1", proposer.Hex()).
		OrderExpr("slot ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*service.Service, len(models))
	for i := range models {
		svc, err := fromServiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = svc
	}
	return result, nil
}

func (s *Store) CountServices(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM subhub_services WHERE active`)
}

func (s *Store) AppendRegistration(ctx context.Context, r *service.Registration) error {
	_, err := s.pg.NewInsert(toRegistrationModel(r)).Exec(ctx)
	return err
}

func (s *Store) ListRegistrations(ctx context.Context, serviceID service.ID) ([]*service.Registration, error) {
	var models []registrationModel
	err := s.pg.NewSelect(&models).
		Where("service_id = $1", serviceID.Hex()).
		OrderExpr("version ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*service.Registration, len(models))
	for i := range models {
		r, err := fromRegistrationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Subscription Store ====================

func (s *Store) SaveSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.pg.NewInsert(m).
		OnConflict("(row_key) DO UPDATE").
		Set("bound_version = EXCLUDED.bound_version").
		Set("will_renew = EXCLUDED.will_renew").
		Set("next_charge_time = EXCLUDED.next_charge_time").
		Set("created_at = EXCLUDED.created_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subscriber common.Address, serviceID service.ID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("row_key = $1", rowKey(subscriber, serviceID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, subhub.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m), nil
}

func (s *Store) DeleteSubscription(ctx context.Context, subscriber common.Address, serviceID service.ID) error {
	res, err := s.pg.NewDelete((*subscriptionModel)(nil)).
		Where("row_key = $1", rowKey(subscriber, serviceID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subhub.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, subscriber common.Address) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := s.pg.NewSelect(&models).
		Where("subscriber = $1", subscriber.Hex()).
		OrderExpr("created_at ASC, service_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		result[i] = fromSubscriptionModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountSubscriptions(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM subhub_subscriptions`)
}

func (s *Store) CountServiceSubscriptions(ctx context.Context, serviceID service.ID) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM subhub_subscriptions WHERE service_id = $1`, serviceID.Hex())
}

// ==================== Schedule Store ====================

func (s *Store) AddEntry(ctx context.Context, due uint64, subscriber common.Address, serviceID service.ID) error {
	var seq int64
	if err := s.pg.NewRaw(`SELECT COALESCE(MAX(seq), 0) + 1 FROM subhub_schedule`).Scan(ctx, &seq); err != nil {
		return err
	}

	m := &entryModel{
		Key:        rowKey(subscriber, serviceID),
		Due:        int64(due),
		Subscriber: subscriber.Hex(),
		ServiceID:  serviceID.Hex(),
		Seq:        seq,
	}
	_, err := s.pg.NewInsert(m).
		OnConflict("(row_key) DO UPDATE").
		Set("due = EXCLUDED.due").
		Set("seq = EXCLUDED.seq").
		Exec(ctx)
	return err
}

func (s *Store) RemoveEntry(ctx context.Context, due uint64, subscriber common.Address, serviceID service.ID) error {
	_, err := s.pg.NewDelete((*entryModel)(nil)).
		Where("row_key = $1", rowKey(subscriber, serviceID)).
		Where("due = $2", int64(due)).
		Exec(ctx)
	return err
}

// PopEntries selects candidates in insertion order, then claims each one
// with a conditional delete. Only entries this call deleted are returned,
// so two processes draining the same bucket never share an entry.
func (s *Store) PopEntries(ctx context.Context, due uint64, limits schedule.Limits) ([]schedule.Entry, error) {
	var models []entryModel
	err := s.pg.NewSelect(&models).
		Where("due = $1", int64(due)).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]schedule.Entry, len(models))
	for i := range models {
		pending[i] = fromEntryModel(&models[i])
	}

	taken := make([]schedule.Entry, 0, len(pending))
	for _, e := range limits.Take(pending) {
		res, err := s.pg.NewDelete((*entryModel)(nil)).
			Where("row_key = $1", rowKey(e.Subscriber, e.ServiceID)).
			Where("due = $2", int64(due)).
			Exec(ctx)
		if err != nil {
			return taken, err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return taken, err
		}
		if rows == 1 {
			taken = append(taken, e)
		}
	}
	return taken, nil
}

func (s *Store) CountEntries(ctx context.Context, due uint64) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM subhub_schedule WHERE due = $1`, int64(due))
}

func (s *Store) EarliestDue(ctx context.Context, upTo uint64) (uint64, bool, error) {
	var due int64
	err := s.pg.NewRaw(`SELECT COALESCE(MIN(due), -1) FROM subhub_schedule WHERE due <= $1`, int64(upTo)).Scan(ctx, &due)
	if err != nil {
		return 0, false, err
	}
	if due < 0 {
		return 0, false, nil
	}
	return uint64(due), true, nil
}

// ==================== Claim Store ====================

func (s *Store) GetBalance(ctx context.Context, serviceID service.ID) (types.Amount, error) {
	m := new(balanceModel)
	err := s.pg.NewSelect(m).
		Where("service_id = $1", serviceID.Hex()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return types.Zero, nil
		}
		return types.Zero, err
	}
	return types.ParseAmount(m.Amount)
}

func (s *Store) CreditBalance(ctx context.Context, serviceID service.ID, amount types.Amount) error {
	return s.adjust(ctx, "subhub_balances", "service_id", serviceID.Hex(), amount, types.Amount.Add)
}

func (s *Store) DebitBalance(ctx context.Context, serviceID service.ID, amount types.Amount) error {
	return s.adjust(ctx, "subhub_balances", "service_id", serviceID.Hex(), amount, types.Amount.Sub)
}

func (s *Store) ClearBalance(ctx context.Context, serviceID service.ID) (types.Amount, error) {
	return s.clear(ctx, "subhub_balances", "service_id", serviceID.Hex())
}

func (s *Store) GetFees(ctx context.Context, asset common.Address) (types.Amount, error) {
	m := new(feeModel)
	err := s.pg.NewSelect(m).
		Where("asset = $1", asset.Hex()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return types.Zero, nil
		}
		return types.Zero, err
	}
	return types.ParseAmount(m.Amount)
}

func (s *Store) CreditFees(ctx context.Context, asset common.Address, amount types.Amount) error {
	return s.adjust(ctx, "subhub_fees", "asset", asset.Hex(), amount, types.Amount.Add)
}

func (s *Store) DebitFees(ctx context.Context, asset common.Address, amount types.Amount) error {
	return s.adjust(ctx, "subhub_fees", "asset", asset.Hex(), amount, types.Amount.Sub)
}

func (s *Store) ClearFees(ctx context.Context, asset common.Address) (types.Amount, error) {
	return s.clear(ctx, "subhub_fees", "asset", asset.Hex())
}

func (s *Store) RecordSettlement(ctx context.Context, st *claim.Settlement) error {
	_, err := s.pg.NewInsert(toSettlementModel(st)).Exec(ctx)
	return err
}

func (s *Store) ListSettlements(ctx context.Context, serviceID service.ID, opts claim.ListOpts) ([]*claim.Settlement, error) {
	var models []settlementModel
	q := s.pg.NewSelect(&models).Where("service_id = $1", serviceID.Hex())
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("hub_time ASC, settled_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*claim.Settlement, len(models))
	for i := range models {
		st, err := fromSettlementModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = st
	}
	return result, nil
}

func (s *Store) RecordPayout(ctx context.Context, p *claim.Payout) error {
	_, err := s.pg.NewInsert(toPayoutModel(p)).Exec(ctx)
	return err
}

func (s *Store) ListPayouts(ctx context.Context, serviceID service.ID, opts claim.ListOpts) ([]*claim.Payout, error) {
	var models []payoutModel
	q := s.pg.NewSelect(&models).Where("service_id = $1", serviceID.Hex())
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("hub_time ASC, paid_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*claim.Payout, len(models))
	for i := range models {
		p, err := fromPayoutModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Helpers ====================

// adjust applies op to the decimal stored under key. Amounts do not fit
// SQL integer arithmetic, so the new value is computed here and written
// back only if the row still holds the value that was read; a lost race
// re-reads and tries again.
func (s *Store) adjust(ctx context.Context, table, keyCol, key string, amount types.Amount, op func(types.Amount, types.Amount) (types.Amount, error)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var stored string
		err := s.pg.NewRaw(`SELECT amount FROM `+table+` WHERE `+keyCol+` = $1`, key).Scan(ctx, &stored)

		var res driver.Result
		switch {
		case isNoRows(err):
			next, oerr := op(types.Zero, amount)
			if oerr != nil {
				return oerr
			}
			res, err = s.pg.NewRaw(
				`INSERT INTO `+table+` (`+keyCol+`, amount, updated_at) VALUES ($1, $2, $3) ON CONFLICT (`+keyCol+`) DO NOTHING`,
				key, next.String(), now(),
			).Exec(ctx)
		case err != nil:
			return err
		default:
			current, perr := types.ParseAmount(stored)
			if perr != nil {
				return perr
			}
			next, oerr := op(current, amount)
			if oerr != nil {
				return oerr
			}
			res, err = s.pg.NewRaw(
				`UPDATE `+table+` SET amount = $1, updated_at = $2 WHERE `+keyCol+` = $3 AND amount = $4`,
				next.String(), now(), key, stored,
			).Exec(ctx)
		}
		if err != nil {
			return err
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 1 {
			return nil
		}
	}
}

// clear deletes the row under key and returns the amount it held, in one
// statement so a concurrent credit lands either before or after it.
func (s *Store) clear(ctx context.Context, table, keyCol, key string) (types.Amount, error) {
	var stored string
	err := s.pg.NewRaw(`DELETE FROM `+table+` WHERE `+keyCol+` = $1 RETURNING amount`, key).Scan(ctx, &stored)
	if err != nil {
		if isNoRows(err) {
			return types.Zero, nil
		}
		return types.Zero, err
	}
	return types.ParseAmount(stored)
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int64
	if err := s.pg.NewRaw(query, args...).Scan(ctx, &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
