package postgres

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
// text.

// ==================== Service models ====================

type serviceModel struct {
	grove.BaseModel `grove:"table:subhub_services"`

	ID        string    `grove:"id,pk"`
	Slot      int64     `grove:"slot"`
	Proposer  string    `grove:"proposer"`
	Receiver  string    `grove:"receiver"`
	Asset     string    `grove:"asset"`
	Amount    string    `grove:"amount"`
	Version   int64     `grove:"version"`
	Active    bool      `grove:"active"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
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

	ID           string    `grove:"id,pk"`
	ServiceID    string    `grove:"service_id"`
	Proposer     string    `grove:"proposer"`
	Version      int64     `grove:"version"`
	Time         int64     `grove:"hub_time"`
	RegisteredAt time.Time `grove:"registered_at"`
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

	Key            string    `grove:"row_key,pk"`
	Subscriber     string    `grove:"subscriber"`
	ServiceID      string    `grove:"service_id"`
	BoundVersion   int64     `grove:"bound_version"`
	WillRenew      bool      `grove:"will_renew"`
	NextChargeTime int64     `grove:"next_charge_time"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
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

	Key        string `grove:"row_key,pk"`
	Due        int64  `grove:"due"`
	Subscriber string `grove:"subscriber"`
	ServiceID  string `grove:"service_id"`
	Seq        int64  `grove:"seq"`
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

	ServiceID string    `grove:"service_id,pk"`
	Amount    string    `grove:"amount"`
	UpdatedAt time.Time `grove:"updated_at"`
}

type feeModel struct {
	grove.BaseModel `grove:"table:subhub_fees"`

	Asset     string    `grove:"asset,pk"`
	Amount    string    `grove:"amount"`
	UpdatedAt time.Time `grove:"updated_at"`
}

type settlementModel struct {
	grove.BaseModel `grove:"table:subhub_settlements"`

	ID         string    `grove:"id,pk"`
	Subscriber string    `grove:"subscriber"`
	ServiceID  string    `grove:"service_id"`
	Version    int64     `grove:"version"`
	Asset      string    `grove:"asset"`
	Amount     string    `grove:"amount"`
	Fee        string    `grove:"fee"`
	Net        string    `grove:"net"`
	Time       int64     `grove:"hub_time"`
	SettledAt  time.Time `grove:"settled_at"`
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

	ID        string    `grove:"id,pk"`
	Kind      string    `grove:"kind"`
	ServiceID string    `grove:"service_id"`
	Asset     string    `grove:"asset"`
	To        string    `grove:"to_address"`
	Amount    string    `grove:"amount"`
	Time      int64     `grove:"hub_time"`
	PaidAt    time.Time `grove:"paid_at"`
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
