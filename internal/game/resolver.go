package game

import (
	"context"
	"fmt"
	"sync"
)

// StaticResolver is the built-in CardResolver used when no external
// scripting engine is attached. Card details are provisioned from the
// references themselves and an on-play simply places the card on the
// board; scripted effects are a no-op.
type StaticResolver struct {
	mu    sync.RWMutex
	cards map[string]CardDetails
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{cards: make(map[string]CardDetails)}
}

func (r *StaticResolver) FetchCardDetails(_ context.Context, cards []CardRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, card := range cards {
		r.cards[card.ID] = CardDetails{CardRef: card}
	}
	return nil
}

func (r *StaticResolver) OnPlay(_ context.Context, state *State, playerID, cardID string) error {
	r.mu.RLock()
	_, known := r.cards[cardID]
	r.mu.RUnlock()
	if !known {
		return &LogicError{Err: fmt.Errorf("card `%s` has not been provisioned", cardID)}
	}
	return state.PlaceCard(playerID, cardID)
}
