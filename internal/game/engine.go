package game

import "context"

// CardDetails is the full card definition as provisioned by the external
// card service, including the scripted effect sources executed by the
// resolution engine.
type CardDetails struct {
	CardRef
	Attack  int32    `json:"attack"`
	Health  int32    `json:"health"`
	Effects []string `json:"effects"`
}

// CardResolver is the boundary to the external card resolution engine. The
// engine owns card data provisioning and the scripted on-play triggers; this
// server only validates that a play is legal before handing it over.
type CardResolver interface {
	// FetchCardDetails provisions the full card data for every card in
	// cards, typically called once per deck right after a player connects.
	FetchCardDetails(ctx context.Context, cards []CardRef) error

	// OnPlay executes the card's scripted on-play triggers against the
	// current game state.
	OnPlay(ctx context.Context, state *State, playerID, cardID string) error
}

// Instance ties a match's authoritative state to the resolution engine that
// executes effects against it.
type Instance struct {
	State    *State
	Resolver CardResolver
}

func NewInstance(resolver CardResolver) *Instance {
	return &Instance{State: NewState(), Resolver: resolver}
}
