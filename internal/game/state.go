package game

import (
	"errors"
	"fmt"
	"sync"
)

// Board slot capacities are fixed by the game rules; the arrays below never
// resize and a card occupies exactly one slot index for its category.
const (
	CreatureSlots    = 6
	ArtifactSlots    = 3
	EnchantmentSlots = 3

	// MaxHandSize is the largest number of cards a player can hold.
	MaxHandSize = 10

	startingHealth = 30
	startingMana   = 1
)

var (
	// ErrPlayerNotInGame indicates a request referencing a player the game
	// state has no record of.
	ErrPlayerNotInGame = errors.New("player is not part of this game")
	// ErrNotPlayersTurn indicates an action attempted out of turn.
	ErrNotPlayersTurn = errors.New("it is not this player's turn")
	// ErrCardNotInHand indicates a play request for a card the player does
	// not currently hold.
	ErrCardNotInHand = errors.New("card is not in the player's hand")
)

// LogicError wraps a game rule violation. Rule violations are reported per
// request and never terminate the offending connection.
type LogicError struct {
	Err error
}

func (e *LogicError) Error() string { return fmt.Sprintf("game logic error: %s", e.Err) }
func (e *LogicError) Unwrap() error { return e.Err }

// Board is the fixed-capacity play area for a single player.
type Board struct {
	Creatures    [CreatureSlots]*CardRef
	Artifacts    [ArtifactSlots]*CardRef
	Enchantments [EnchantmentSlots]*CardRef
}

// Graveyard accumulates destroyed cards per category. Unlike the board it
// is unbounded.
type Graveyard struct {
	Creatures    []CardRef
	Artifacts    []CardRef
	Enchantments []CardRef
}

// PlayerState is the full-information record for one seated player.
type PlayerState struct {
	ID        string
	Health    int32
	Mana      uint32
	Hand      []CardRef
	Deck      []CardRef
	Board     Board
	Graveyard Graveyard
}

// State is the authoritative state of one match. All access goes through
// the methods below; the mutex covers the whole structure since game state
// mutations are infrequent relative to connection traffic.
type State struct {
	mu      sync.RWMutex
	turn    uint32
	turnOf  string
	players map[string]*PlayerState
}

// NewState creates an empty match ready to seat players.
func NewState() *State {
	return &State{players: make(map[string]*PlayerState)}
}

// SeatPlayer adds a player to the match with the standard starting
// resources and their deck in drawing order. The first seated player takes
// the first turn.
func (s *State) SeatPlayer(playerID string, deck []CardRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.players[playerID] = &PlayerState{
		ID:     playerID,
		Health: startingHealth,
		Mana:   startingMana,
		Deck:   append([]CardRef(nil), deck...),
		Hand:   make([]CardRef, 0, MaxHandSize),
	}
	if s.turnOf == "" {
		s.turnOf = playerID
		s.turn = 1
	}
}

// UnseatPlayer removes a player from the match, passing the turn to the
// next seated player if they held it. Unseating an unknown player is a
// no-op.
func (s *State) UnseatPlayer(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[playerID]; !ok {
		return
	}
	delete(s.players, playerID)

	if s.turnOf == playerID {
		s.turnOf = ""
		for id := range s.players {
			s.turnOf = id
			break
		}
		if s.turnOf != "" {
			s.turn++
		}
	}
}

// Player returns the state record for playerID, or ErrPlayerNotInGame.
func (s *State) Player(playerID string) (*PlayerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	player, ok := s.players[playerID]
	if !ok {
		return nil, &LogicError{Err: ErrPlayerNotInGame}
	}
	return player, nil
}

// IsTurnOf reports whether playerID currently holds the turn.
func (s *State) IsTurnOf(playerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turnOf == playerID
}

// AdvanceTurn passes the turn to the next seated player.
func (s *State) AdvanceTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.players {
		if id != s.turnOf {
			s.turnOf = id
			break
		}
	}
	s.turn++
}

// Turn returns the current turn counter.
func (s *State) Turn() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turn
}

// HandContains reports whether the player holds the given card.
func (p *PlayerState) HandContains(cardID string) bool {
	for _, card := range p.Hand {
		if card.ID == cardID {
			return true
		}
	}
	return false
}

// DrawCard moves the top card of the deck into the player's hand. Drawing
// on a full hand or an empty deck is a no-op reported by the return value.
func (p *PlayerState) DrawCard() bool {
	if len(p.Deck) == 0 || len(p.Hand) >= MaxHandSize {
		return false
	}
	p.Hand = append(p.Hand, p.Deck[0])
	p.Deck = p.Deck[1:]
	return true
}

// removeFromHand takes cardID out of the hand, preserving order.
func (p *PlayerState) removeFromHand(cardID string) (CardRef, bool) {
	for i, card := range p.Hand {
		if card.ID == cardID {
			p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
			return card, true
		}
	}
	return CardRef{}, false
}

// PlaceCard moves a card from the player's hand onto the first free board
// slot for its category. Placing into a full category fails and the card
// stays in the hand.
func (s *State) PlaceCard(playerID, cardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[playerID]
	if !ok {
		return &LogicError{Err: ErrPlayerNotInGame}
	}

	card, ok := player.removeFromHand(cardID)
	if !ok {
		return &LogicError{Err: ErrCardNotInHand}
	}

	var slots []*CardRef
	switch card.Category {
	case CategoryArtifact:
		slots = player.Board.Artifacts[:]
	case CategoryEnchantment:
		slots = player.Board.Enchantments[:]
	default:
		slots = player.Board.Creatures[:]
	}

	for i := range slots {
		if slots[i] == nil {
			placed := card
			switch card.Category {
			case CategoryArtifact:
				player.Board.Artifacts[i] = &placed
			case CategoryEnchantment:
				player.Board.Enchantments[i] = &placed
			default:
				player.Board.Creatures[i] = &placed
			}
			return nil
		}
	}

	// No free slot; put the card back where it was.
	player.Hand = append(player.Hand, card)
	return &LogicError{Err: fmt.Errorf("no free %s slot", card.Category)}
}
