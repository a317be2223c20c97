package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/subhub"
	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/schedule"
	"github.com/xraph/subhub/service"
	subhubstore "github.com/xraph/subhub/store"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/types"
)

// Collection name constants.
const (
	colServices      = "subhub_services"
	colRegistrations = "subhub_registrations"
	colSubscriptions = "subhub_subscriptions"
	colSchedule      = "subhub_schedule"
	colBalances      = "subhub_balances"
	colFees          = "subhub_fees"
	colSettlements   = "subhub_settlements"
	colPayouts       = "subhub_payouts"
)

// compile-time interface check
var _ subhubstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all subhub collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("subhub/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"slot":       m.Slot,
			"proposer":   m.Proposer,
			"receiver":   m.Receiver,
			"asset":      m.Asset,
			"amount":     m.Amount,
			"version":    m.Version,
			"active":     m.Active,
			"created_at": m.CreatedAt,
			"updated_at": m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subhub/mongo: save service: %w", err)
	}
	return nil
}

func (s *Store) GetService(ctx context.Context, serviceID service.ID) (*service.Service, error) {
	var m serviceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": serviceID.Hex()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subhub.ErrServiceNotFound
		}
		return nil, fmt.Errorf("subhub/mongo: get service: %w", err)
	}
	return fromServiceModel(&m)
}

func (s *Store) ListServices(ctx context.Context, proposer common.Address) ([]*service.Service, error) {
	var models []serviceModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"proposer": proposer.Hex()}).
		Sort(bson.D{{Key: "slot", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("subhub/mongo: list services: %w", err)
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
	return s.count(ctx, colServices, bson.M{"active": true})
}

func (s *Store) AppendRegistration(ctx context.Context, r *service.Registration) error {
	_, err := s.mdb.NewInsert(toRegistrationModel(r)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("subhub/mongo: append registration: %w", err)
	}
	return nil
}

func (s *Store) ListRegistrations(ctx context.Context, serviceID service.ID) ([]*service.Registration, error) {
	var models []registrationModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"service_id": serviceID.Hex()}).
		Sort(bson.D{{Key: "version", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("subhub/mongo: list registrations: %w", err)
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
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Key}).
		SetUpdate(bson.M{"$set": bson.M{
			"subscriber":       m.Subscriber,
			"service_id":       m.ServiceID,
			"bound_version":    m.BoundVersion,
			"will_renew":       m.WillRenew,
			"next_charge_time": m.NextChargeTime,
			"created_at":       m.CreatedAt,
			"updated_at":       m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subhub/mongo: save subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subscriber common.Address, serviceID service.ID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": rowKey(subscriber, serviceID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subhub.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("subhub/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m), nil
}

func (s *Store) DeleteSubscription(ctx context.Context, subscriber common.Address, serviceID service.ID) error {
	res, err := s.mdb.NewDelete((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": rowKey(subscriber, serviceID)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subhub/mongo: delete subscription: %w", err)
	}
	if res.DeletedCount() == 0 {
		return subhub.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, subscriber common.Address) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"subscriber": subscriber.Hex()}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "service_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("subhub/mongo: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		result[i] = fromSubscriptionModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountSubscriptions(ctx context.Context) (int, error) {
	return s.count(ctx, colSubscriptions, bson.M{})
}

func (s *Store) CountServiceSubscriptions(ctx context.Context, serviceID service.ID) (int, error) {
	return s.count(ctx, colSubscriptions, bson.M{"service_id": serviceID.Hex()})
}

// ==================== Schedule Store ====================

func (s *Store) AddEntry(ctx context.Context, due uint64, subscriber common.Address, serviceID service.ID) error {
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return err
	}

	m := &entryModel{
		Key:        rowKey(subscriber, serviceID),
		Due:        int64(due),
		Subscriber: subscriber.Hex(),
		ServiceID:  serviceID.Hex(),
		Seq:        seq,
	}
	_, err = s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Key}).
		SetUpdate(bson.M{"$set": bson.M{
			"due":        m.Due,
			"subscriber": m.Subscriber,
			"service_id": m.ServiceID,
			"seq":        m.Seq,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subhub/mongo: add entry: %w", err)
	}
	return nil
}

func (s *Store) RemoveEntry(ctx context.Context, due uint64, subscriber common.Address, serviceID service.ID) error {
	_, err := s.mdb.NewDelete((*entryModel)(nil)).
		Filter(bson.M{"_id": rowKey(subscriber, serviceID), "due": int64(due)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subhub/mongo: remove entry: %w", err)
	}
	return nil
}

func (s *Store) PopEntries(ctx context.Context, due uint64, limits schedule.Limits) ([]schedule.Entry, error) {
	var models []entryModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"due": int64(due)}).
		Sort(bson.D{{Key: "seq", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("subhub/mongo: read bucket: %w", err)
	}

	pending := make([]schedule.Entry, len(models))
	for i := range models {
		pending[i] = fromEntryModel(&models[i])
	}

	taken := make([]schedule.Entry, 0, len(pending))
	for _, e := range limits.Take(pending) {
		res, err := s.mdb.NewDelete((*entryModel)(nil)).
			Filter(bson.M{"_id": rowKey(e.Subscriber, e.ServiceID), "due": int64(due)}).
			Exec(ctx)
		if err != nil {
			return taken, fmt.Errorf("subhub/mongo: take entry: %w", err)
		}
		if res.DeletedCount() == 1 {
			taken = append(taken, e)
		}
	}
	return taken, nil
}

func (s *Store) CountEntries(ctx context.Context, due uint64) (int, error) {
	return s.count(ctx, colSchedule, bson.M{"due": int64(due)})
}

func (s *Store) EarliestDue(ctx context.Context, upTo uint64) (uint64, bool, error) {
	var m entryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"due": bson.M{"$lte": int64(upTo)}}).
		Sort(bson.D{{Key: "due", Value: 1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("subhub/mongo: earliest due: %w", err)
	}
	return uint64(m.Due), true, nil
}

func (s *Store) nextSeq(ctx context.Context) (int64, error) {
	var m entryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "seq", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 1, nil
		}
		return 0, fmt.Errorf("subhub/mongo: next seq: %w", err)
	}
	return m.Seq + 1, nil
}

// ==================== Claim Store ====================

func (s *Store) GetBalance(ctx context.Context, serviceID service.ID) (types.Amount, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": serviceID.Hex()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return types.Zero, nil
		}
		return types.Zero, fmt.Errorf("subhub/mongo: get balance: %w", err)
	}
	return types.ParseAmount(m.Amount)
}

func (s *Store) CreditBalance(ctx context.Context, serviceID service.ID, amount types.Amount) error {
	if err := s.adjust(ctx, colBalances, serviceID.Hex(), amount, types.Amount.Add); err != nil {
		return fmt.Errorf("subhub/mongo: credit balance: %w", err)
	}
	return nil
}

func (s *Store) DebitBalance(ctx context.Context, serviceID service.ID, amount types.Amount) error {
	if err := s.adjust(ctx, colBalances, serviceID.Hex(), amount, types.Amount.Sub); err != nil {
		return fmt.Errorf("subhub/mongo: debit balance: %w", err)
	}
	return nil
}

func (s *Store) ClearBalance(ctx context.Context, serviceID service.ID) (types.Amount, error) {
	prior, err := s.clear(ctx, colBalances, serviceID.Hex())
	if err != nil {
		return types.Zero, fmt.Errorf("subhub/mongo: clear balance: %w", err)
	}
	return prior, nil
}

func (s *Store) GetFees(ctx context.Context, asset common.Address) (types.Amount, error) {
	var m feeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": asset.Hex()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return types.Zero, nil
		}
		return types.Zero, fmt.Errorf("subhub/mongo: get fees: %w", err)
	}
	return types.ParseAmount(m.Amount)
}

func (s *Store) CreditFees(ctx context.Context, asset common.Address, amount types.Amount) error {
	if err := s.adjust(ctx, colFees, asset.Hex(), amount, types.Amount.Add); err != nil {
		return fmt.Errorf("subhub/mongo: credit fees: %w", err)
	}
	return nil
}

func (s *Store) DebitFees(ctx context.Context, asset common.Address, amount types.Amount) error {
	if err := s.adjust(ctx, colFees, asset.Hex(), amount, types.Amount.Sub); err != nil {
		return fmt.Errorf("subhub/mongo: debit fees: %w", err)
	}
	return nil
}

func (s *Store) ClearFees(ctx context.Context, asset common.Address) (types.Amount, error) {
	prior, err := s.clear(ctx, colFees, asset.Hex())
	if err != nil {
		return types.Zero, fmt.Errorf("subhub/mongo: clear fees: %w", err)
	}
	return prior, nil
}

func (s *Store) RecordSettlement(ctx context.Context, st *claim.Settlement) error {
	_, err := s.mdb.NewInsert(toSettlementModel(st)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("subhub/mongo: record settlement: %w", err)
	}
	return nil
}

func (s *Store) ListSettlements(ctx context.Context, serviceID service.ID, opts claim.ListOpts) ([]*claim.Settlement, error) {
	var models []settlementModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{"service_id": serviceID.Hex()}).
		Sort(bson.D{{Key: "hub_time", Value: 1}, {Key: "settled_at", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("subhub/mongo: list settlements: %w", err)
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
	_, err := s.mdb.NewInsert(toPayoutModel(p)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("subhub/mongo: record payout: %w", err)
	}
	return nil
}

func (s *Store) ListPayouts(ctx context.Context, serviceID service.ID, opts claim.ListOpts) ([]*claim.Payout, error) {
	var models []payoutModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{"service_id": serviceID.Hex()}).
		Sort(bson.D{{Key: "hub_time", Value: 1}, {Key: "paid_at", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("subhub/mongo: list payouts: %w", err)
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

// amountDoc is the shape shared by the balance and fee collections.
type amountDoc struct {
	Key       string    `bson:"_id"`
	Amount    string    `bson:"amount"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// adjust applies op to the decimal stored under key. The write is
// conditioned on the value that was read, and a lost race re-reads.
func (s *Store) adjust(ctx context.Context, col, key string, amount types.Amount, op func(types.Amount, types.Amount) (types.Amount, error)) error {
	coll := s.mdb.Collection(col)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var doc amountDoc
		err := coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
		if isNoDocuments(err) {
			next, oerr := op(types.Zero, amount)
			if oerr != nil {
				return oerr
			}
			_, err = coll.InsertOne(ctx, amountDoc{Key: key, Amount: next.String(), UpdatedAt: now()})
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return err
		}
		if err != nil {
			return err
		}

		current, err := types.ParseAmount(doc.Amount)
		if err != nil {
			return err
		}
		next, err := op(current, amount)
		if err != nil {
			return err
		}
		res, err := coll.UpdateOne(ctx,
			bson.M{"_id": key, "amount": doc.Amount},
			bson.M{"$set": bson.M{"amount": next.String(), "updated_at": now()}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}
}

// clear removes the document under key and returns the amount it held.
func (s *Store) clear(ctx context.Context, col, key string) (types.Amount, error) {
	var doc amountDoc
	err := s.mdb.Collection(col).FindOneAndDelete(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return types.Zero, nil
		}
		return types.Zero, err
	}
	return types.ParseAmount(doc.Amount)
}

func (s *Store) count(ctx context.Context, col string, filter bson.M) (int, error) {
	n, err := s.mdb.Collection(col).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("subhub/mongo: count %s: %w", col, err)
	}
	return int(n), nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all subhub collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colServices: {
			{
				Keys:    bson.D{{Key: "proposer", Value: 1}, {Key: "slot", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "active", Value: 1}}},
		},
		colRegistrations: {
			{Keys: bson.D{{Key: "service_id", Value: 1}, {Key: "version", Value: 1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "subscriber", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "service_id", Value: 1}}},
		},
		colSchedule: {
			{Keys: bson.D{{Key: "due", Value: 1}, {Key: "seq", Value: 1}}},
			{Keys: bson.D{{Key: "seq", Value: -1}}},
		},
		colBalances: {},
		colFees:     {},
		colSettlements: {
			{Keys: bson.D{{Key: "service_id", Value: 1}, {Key: "hub_time", Value: 1}}},
		},
		colPayouts: {
			{Keys: bson.D{{Key: "service_id", Value: 1}, {Key: "hub_time", Value: 1}}},
		},
	}
}
