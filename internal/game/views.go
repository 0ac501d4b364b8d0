package game

// The view types below are what actually crosses the wire in GameStateUpdate
// packets. A player only ever receives full information about their own side;
// the opponent's side is reduced to counts.

// BoardView mirrors the fixed slot layout of a Board.
type BoardView struct {
	Creatures    [CreatureSlots]*CardRef    `cbor:"creatures"`
	Artifacts    [ArtifactSlots]*CardRef    `cbor:"artifacts"`
	Enchantments [EnchantmentSlots]*CardRef `cbor:"enchantments"`
}

// GraveyardView lists destroyed cards per category. Graveyards are public
// information, so both views carry the full contents.
type GraveyardView struct {
	Creatures    []CardRef `cbor:"creatures"`
	Artifacts    []CardRef `cbor:"artifacts"`
	Enchantments []CardRef `cbor:"enchantments"`
}

// PrivatePlayerView is the owner's full-information view of their own side.
type PrivatePlayerView struct {
	ID     string `cbor:"id"`
	Health int32  `cbor:"health"`
	Mana   uint32 `cbor:"mana"`

	HandSize    int                   `cbor:"hand_size"`
	DeckSize    int                   `cbor:"deck_size"`
	CurrentHand [MaxHandSize]*CardRef `cbor:"current_hand"`

	Board         BoardView     `cbor:"board"`
	GraveyardSize int           `cbor:"graveyard_size"`
	Graveyard     GraveyardView `cbor:"graveyard"`
}

// PublicPlayerView is the redacted view of an opponent: counts only, no
// hand contents.
type PublicPlayerView struct {
	ID     string `cbor:"id"`
	Health int32  `cbor:"health"`
	Mana   uint32 `cbor:"mana"`

	HandSize      int `cbor:"hand_size"`
	DeckSize      int `cbor:"deck_size"`
	GraveyardSize int `cbor:"graveyard_size"`

	Board BoardView `cbor:"board"`
}

// StateView is the per-recipient snapshot broadcast on every tick: the
// recipient's own side in full, every other side redacted.
type StateView struct {
	Turn      uint32             `cbor:"turn"`
	You       PrivatePlayerView  `cbor:"you"`
	Opponents []PublicPlayerView `cbor:"opponents"`
}

// SnapshotFor builds the snapshot delivered to playerID, or
// ErrPlayerNotInGame if they are not seated.
func (s *State) SnapshotFor(playerID string) (*StateView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.players[playerID]
	if !ok {
		return nil, &LogicError{Err: ErrPlayerNotInGame}
	}

	view := &StateView{
		Turn: s.turn,
		You:  privateView(owner),
	}
	for id, player := range s.players {
		if id == playerID {
			continue
		}
		view.Opponents = append(view.Opponents, publicView(player))
	}
	return view, nil
}

func privateView(p *PlayerState) PrivatePlayerView {
	view := PrivatePlayerView{
		ID:            p.ID,
		Health:        p.Health,
		Mana:          p.Mana,
		HandSize:      len(p.Hand),
		DeckSize:      len(p.Deck),
		Board:         boardView(&p.Board),
		Graveyard:     graveyardView(&p.Graveyard),
		GraveyardSize: graveyardSize(&p.Graveyard),
	}
	for i := range p.Hand {
		card := p.Hand[i]
		view.CurrentHand[i] = &card
	}
	return view
}

func publicView(p *PlayerState) PublicPlayerView {
	return PublicPlayerView{
		ID:            p.ID,
		Health:        p.Health,
		Mana:          p.Mana,
		HandSize:      len(p.Hand),
		DeckSize:      len(p.Deck),
		GraveyardSize: graveyardSize(&p.Graveyard),
		Board:         boardView(&p.Board),
	}
}

func boardView(b *Board) BoardView {
	return BoardView{
		Creatures:    b.Creatures,
		Artifacts:    b.Artifacts,
		Enchantments: b.Enchantments,
	}
}

func graveyardView(g *Graveyard) GraveyardView {
	return GraveyardView{
		Creatures:    g.Creatures,
		Artifacts:    g.Artifacts,
		Enchantments: g.Enchantments,
	}
}

func graveyardSize(g *Graveyard) int {
	return len(g.Creatures) + len(g.Artifacts) + len(g.Enchantments)
}
