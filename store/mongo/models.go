package mongo

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"

	"github.com/xraph/subhub/claim"
	"github.com/xraph/subhub/id"
	"github.com/xraph/subhub/schedule"
	"github.com/xraph/subhub/service"
	"github.com/xraph/subhub/subscription"
	"github.com/xraph/subhub/types"
)

// Addresses and hashes are stored as 0x-prefixed hex, amounts as decimal
// strings so no precision is lost to BSON numeric types.

// ==================== Service models ====================

type serviceModel struct {
	grove.BaseModel `grove:"table:subhub_services"`

	ID        string    `grove:"id,pk" bson:"_id"`
	Slot      int64     `grove:"slot" bson:"slot"`
	Proposer  string    `grove:"proposer" bson:"proposer"`
	Receiver  string    `grove:"receiver" bson:"receiver"`
	Asset     string    `grove:"asset" bson:"asset"`
	Amount    string    `grove:"amount" bson:"amount"`
	Version   int64     `grove:"version" bson:"version"`
	Active    bool      `grove:"active" bson:"active"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toServiceModel(s *service.Service) *serviceModel {
	return &serviceModel{
		ID:        s.ID.Hex(),
		Slot:      int64(s.Slot),
		Proposer:  s.Proposer.Hex(),
		Receiver:  s.Receiver.Hex(),
		Asset:     s.Asset.Hex(),
		Amount:    s.Amount.String(),
		Version:   int64(s.Version),
		Active:    s.Active,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func fromServiceModel(m *serviceModel) (*service.Service, error) {
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	return &service.Service{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       common.HexToHash(m.ID),
		Slot:     uint64(m.Slot),
		Proposer: common.HexToAddress(m.Proposer),
		Receiver: common.HexToAddress(m.Receiver),
		Asset:    common.HexToAddress(m.Asset),
		Amount:   amount,
		Version:  uint64(m.Version),
		Active:   m.Active,
	}, nil
}

type registrationModel struct {
	grove.BaseModel `grove:"table:subhub_registrations"`

	ID           string    `grove:"id,pk" bson:"_id"`
	ServiceID    string    `grove:"service_id" bson:"service_id"`
	Proposer     string    `grove:"proposer" bson:"proposer"`
	Version      int64     `grove:"version" bson:"version"`
	Time         int64     `grove:"hub_time" bson:"hub_time"`
	RegisteredAt time.Time `grove:"registered_at" bson:"registered_at"`
}

func toRegistrationModel(r *service.Registration) *registrationModel {
	return &registrationModel{
		ID:           r.ID.String(),
		ServiceID:    r.ServiceID.Hex(),
		Proposer:     r.Proposer.Hex(),
		Version:      int64(r.Version),
		Time:         int64(r.Time),
		RegisteredAt: r.RegisteredAt,
	}
}

func fromRegistrationModel(m *registrationModel) (*service.Registration, error) {
	regID, err := id.ParseRegistrationID(m.ID)
	if err != nil {
		return nil, err
	}
	return &service.Registration{
		ID:           regID,
		ServiceID:    common.HexToHash(m.ServiceID),
		Proposer:     common.HexToAddress(m.Proposer),
		Version:      uint64(m.Version),
		Time:         uint64(m.Time),
		RegisteredAt: m.RegisteredAt,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:subhub_subscriptions"`

	Key            string    `grove:"row_key,pk" bson:"_id"`
	Subscriber     string    `grove:"subscriber" bson:"subscriber"`
	ServiceID      string    `grove:"service_id" bson:"service_id"`
	BoundVersion   int64     `grove:"bound_version" bson:"bound_version"`
	WillRenew      bool      `grove:"will_renew" bson:"will_renew"`
	NextChargeTime int64     `grove:"next_charge_time" bson:"next_charge_time"`
	CreatedAt      time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at" bson:"updated_at"`
}

// rowKey is the primary key shared by the subscription and schedule tables.
func rowKey(subscriber common.Address, serviceID service.ID) string {
	return subscriber.Hex() + ":" + serviceID.Hex()
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		Key:            rowKey(s.Subscriber, s.ServiceID),
		Subscriber:     s.Subscriber.Hex(),
		ServiceID:      s.ServiceID.Hex(),
		BoundVersion:   int64(s.BoundVersion),
		WillRenew:      s.WillRenew,
		NextChargeTime: int64(s.NextChargeTime),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) *subscription.Subscription {
	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Subscriber:     common.HexToAddress(m.Subscriber),
		ServiceID:      common.HexToHash(m.ServiceID),
		BoundVersion:   uint64(m.BoundVersion),
		WillRenew:      m.WillRenew,
		NextChargeTime: uint64(m.NextChargeTime),
	}
}

// ==================== Schedule models ====================

type entryModel struct {
	grove.BaseModel `grove:"table:subhub_schedule"`

	Key        string `grove:"row_key,pk" bson:"_id"`
	Due        int64  `grove:"due" bson:"due"`
	Subscriber string `grove:"subscriber" bson:"subscriber"`
	ServiceID  string `grove:"service_id" bson:"service_id"`
	Seq        int64  `grove:"seq" bson:"seq"`
}

func fromEntryModel(m *entryModel) schedule.Entry {
	return schedule.Entry{
		Due:        uint64(m.Due),
		Subscriber: common.HexToAddress(m.Subscriber),
		ServiceID:  common.HexToHash(m.ServiceID),
		Seq:        uint64(m.Seq),
	}
}

// ==================== Claim models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:subhub_balances"`

	ServiceID string    `grove:"service_id,pk" bson:"_id"`
	Amount    string    `grove:"amount" bson:"amount"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

type feeModel struct {
	grove.BaseModel `grove:"table:subhub_fees"`

	Asset     string    `grove:"asset,pk" bson:"_id"`
	Amount    string    `grove:"amount" bson:"amount"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

type settlementModel struct {
	grove.BaseModel `grove:"table:subhub_settlements"`

	ID         string    `grove:"id,pk" bson:"_id"`
	Subscriber string    `grove:"subscriber" bson:"subscriber"`
	ServiceID  string    `grove:"service_id" bson:"service_id"`
	Version    int64     `grove:"version" bson:"version"`
	Asset      string    `grove:"asset" bson:"asset"`
	Amount     string    `grove:"amount" bson:"amount"`
	Fee        string    `grove:"fee" bson:"fee"`
	Net        string    `grove:"net" bson:"net"`
	Time       int64     `grove:"hub_time" bson:"hub_time"`
	SettledAt  time.Time `grove:"settled_at" bson:"settled_at"`
}

func toSettlementModel(s *claim.Settlement) *settlementModel {
	return &settlementModel{
		ID:         s.ID.String(),
		Subscriber: s.Subscriber.Hex(),
		ServiceID:  s.ServiceID.Hex(),
		Version:    int64(s.Version),
		Asset:      s.Asset.Hex(),
		Amount:     s.Amount.String(),
		Fee:        s.Fee.String(),
		Net:        s.Net.String(),
		Time:       int64(s.Time),
		SettledAt:  s.SettledAt,
	}
}

func fromSettlementModel(m *settlementModel) (*claim.Settlement, error) {
	stlID, err := id.ParseSettlementID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := types.ParseAmount(m.Fee)
	if err != nil {
		return nil, err
	}
	net, err := types.ParseAmount(m.Net)
	if err != nil {
		return nil, err
	}
	return &claim.Settlement{
		ID:         stlID,
		Subscriber: common.HexToAddress(m.Subscriber),
		ServiceID:  common.HexToHash(m.ServiceID),
		Version:    uint64(m.Version),
		Asset:      common.HexToAddress(m.Asset),
		Amount:     amount,
		Fee:        fee,
		Net:        net,
		Time:       uint64(m.Time),
		SettledAt:  m.SettledAt,
	}, nil
}

type payoutModel struct {
	grove.BaseModel `grove:"table:subhub_payouts"`

	ID        string    `grove:"id,pk" bson:"_id"`
	Kind      string    `grove:"kind" bson:"kind"`
	ServiceID string    `grove:"service_id" bson:"service_id"`
	Asset     string    `grove:"asset" bson:"asset"`
	To        string    `grove:"to_address" bson:"to_address"`
	Amount    string    `grove:"amount" bson:"amount"`
	Time      int64     `grove:"hub_time" bson:"hub_time"`
	PaidAt    time.Time `grove:"paid_at" bson:"paid_at"`
}

func toPayoutModel(p *claim.Payout) *payoutModel {
	return &payoutModel{
		ID:        p.ID.String(),
		Kind:      string(p.Kind),
		ServiceID: p.ServiceID.Hex(),
		Asset:     p.Asset.Hex(),
		To:        p.To.Hex(),
		Amount:    p.Amount.String(),
		Time:      int64(p.Time),
		PaidAt:    p.PaidAt,
	}
}

func fromPayoutModel(m *payoutModel) (*claim.Payout, error) {
	payoutID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	return &claim.Payout{
		ID:        payoutID,
		Kind:      claim.PayoutKind(m.Kind),
		ServiceID: common.HexToHash(m.ServiceID),
		Asset:     common.HexToAddress(m.Asset),
		To:        common.HexToAddress(m.To),
		Amount:    amount,
		Time:      uint64(m.Time),
		PaidAt:    m.PaidAt,
	}, nil
}
