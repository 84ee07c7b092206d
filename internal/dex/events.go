package dex

// Domain events emitted after each successful operation. Events are
// notifications to an external collaborator, not return values; operation
// results flow back to the caller separately.

// Event types.
const (
	EventPoolCreated       = "pool_created"
	EventLiquidityProvided = "liquidity_provided"
	EventSwapped           = "swapped"
	EventRedeemed          = "redeemed"
)

// Event is the JSON payload published to the event sink. Amount fields are
// base-10 strings; unused fields are omitted per event type.
type Event struct {
	Type      string `json:"type"`
	PoolID    string `json:"pool_id"`
	LPTokenID string `json:"lp_token_id,omitempty"`
	LPAmount  string `json:"lp_amount,omitempty"`
	AssetA    string `json:"asset_a,omitempty"`
	AssetB    string `json:"asset_b,omitempty"`
	AmountA   string `json:"amount_a,omitempty"`
	AmountB   string `json:"amount_b,omitempty"`
	AssetOut  string `json:"asset_out,omitempty"`
	AmountOut string `json:"amount_out,omitempty"`
}

// EventSink receives domain events. Sinks must not block: publication
// happens on the operation path after commit, and a slow consumer must
// never stall the engine.
type EventSink interface {
	Publish(Event)
}
