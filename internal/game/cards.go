// Package game holds the server-authoritative game state, the per-player
// views derived from it, and the boundary to the external card resolution
// engine. The rules themselves (card effects, scripted triggers) live on the
// other side of that boundary and are not implemented here.
package game

// CardCategory determines which group of board slots a card can occupy.
type CardCategory string

const (
	CategoryCreature    CardCategory = "creature"
	CategoryArtifact    CardCategory = "artifact"
	CategoryEnchantment CardCategory = "enchantment"
)

// CardRef is a lightweight reference to a card, sufficient to identify it
// against the card database without carrying the full card data.
type CardRef struct {
	ID       string       `json:"id" cbor:"id"`
	Name     string       `json:"name" cbor:"name"`
	Category CardCategory `json:"category" cbor:"category"`
}

// Deck is an ordered list of card references as returned by the deck
// inventory service.
type Deck struct {
	ID    string    `json:"id"`
	Cards []CardRef `json:"cards"`
}
