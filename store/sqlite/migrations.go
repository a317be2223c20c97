package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the SubHub store (SQLite).
var Migrations = migrate.NewGroup("subhub")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_subhub_services",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subhub_services (
    id         TEXT PRIMARY KEY,
    slot       INTEGER NOT NULL,
    proposer   TEXT NOT NULL,
    receiver   TEXT NOT NULL,
    asset      TEXT NOT NULL,
    amount     TEXT NOT NULL DEFAULT '0',
    version    INTEGER NOT NULL DEFAULT 0,
    active     INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_subhub_services_slot ON subhub_services (proposer, slot);
CREATE INDEX IF NOT EXISTS idx_subhub_services_active ON subhub_services (active);

CREATE TABLE IF NOT EXISTS subhub_registrations (
    id            TEXT PRIMARY KEY,
    service_id    TEXT NOT NULL,
    proposer      TEXT NOT NULL,
    version       INTEGER NOT NULL,
    hub_time      INTEGER NOT NULL,
    registered_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_subhub_registrations_service ON subhub_registrations (service_id, version);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS subhub_registrations;
DROP TABLE IF EXISTS subhub_services;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subhub_subscriptions",
			Version: "20250301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subhub_subscriptions (
    row_key          TEXT PRIMARY KEY,
    subscriber       TEXT NOT NULL,
    service_id       TEXT NOT NULL,
    bound_version    INTEGER NOT NULL,
    will_renew       INTEGER NOT NULL DEFAULT 0,
    next_charge_time INTEGER NOT NULL,
    created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_subhub_subs_subscriber ON subhub_subscriptions (subscriber, created_at);
CREATE INDEX IF NOT EXISTS idx_subhub_subs_service ON subhub_subscriptions (service_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subhub_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subhub_schedule",
			Version: "20250301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subhub_schedule (
    row_key    TEXT PRIMARY KEY,
    due        INTEGER NOT NULL,
    subscriber TEXT NOT NULL,
    service_id TEXT NOT NULL,
    seq        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_subhub_schedule_due ON subhub_schedule (due, seq);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subhub_schedule`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subhub_claims",
			Version: "20250301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subhub_balances (
    service_id TEXT PRIMARY KEY,
    amount     TEXT NOT NULL DEFAULT '0',
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS subhub_fees (
    asset      TEXT PRIMARY KEY,
    amount     TEXT NOT NULL DEFAULT '0',
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS subhub_settlements (
    id         TEXT PRIMARY KEY,
    subscriber TEXT NOT NULL,
    service_id TEXT NOT NULL,
    version    INTEGER NOT NULL,
    asset      TEXT NOT NULL,
    amount     TEXT NOT NULL,
    fee        TEXT NOT NULL,
    net        TEXT NOT NULL,
    hub_time   INTEGER NOT NULL,
    settled_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_subhub_settlements_service ON subhub_settlements (service_id, hub_time);

CREATE TABLE IF NOT EXISTS subhub_payouts (
    id         TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    service_id TEXT NOT NULL,
    asset      TEXT NOT NULL,
    to_address TEXT NOT NULL,
    amount     TEXT NOT NULL,
    hub_time   INTEGER NOT NULL,
    paid_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_subhub_payouts_service ON subhub_payouts (service_id, hub_time);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS subhub_payouts;
DROP TABLE IF EXISTS subhub_settlements;
DROP TABLE IF EXISTS subhub_fees;
DROP TABLE IF EXISTS subhub_balances;
`)
				return err
			},
		},
	)
}
