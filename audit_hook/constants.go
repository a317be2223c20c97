package audithook

// Action constants for audit events.
const (
	// Registry actions
	ActionServiceRegistered   = "service.registered"
	ActionServiceReregistered = "service.reregistered"
	ActionServiceUnregistered = "service.unregistered"

	// Subscription actions
	ActionSubscribed           = "subscription.created"
	ActionSubscriptionRestored = "subscription.restored"
	ActionUnsubscribed         = "subscription.unsubscribed"
	ActionSubscriptionEnded    = "subscription.ended"

	// Settlement actions
	ActionChargeSettled = "charge.settled"
	ActionChargeFailed  = "charge.failed"
	ActionClaimed       = "proceeds.claimed"
	ActionFeesWithdrawn = "fees.withdrawn"
)

// Resource constants for audit events.
const (
	ResourceService      = "service"
	ResourceSubscription = "subscription"
	ResourceSettlement   = "settlement"
	ResourcePayout       = "payout"
	ResourceTreasury     = "treasury"
)

// Category constants for audit events.
const (
	CategoryRegistry     = "registry"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
