package game

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testDeck() []CardRef {
	return []CardRef{
		{ID: "c1", Name: "Bog Lurker", Category: CategoryCreature},
		{ID: "c2", Name: "Ember Imp", Category: CategoryCreature},
		{ID: "a1", Name: "Rusty Idol", Category: CategoryArtifact},
		{ID: "e1", Name: "Ward of Thorns", Category: CategoryEnchantment},
	}
}

func TestSeatPlayerAndTurnOrder(t *testing.T) {
	state := NewState()
	state.SeatPlayer("red", testDeck())
	state.SeatPlayer("blue", testDeck())

	if !state.IsTurnOf("red") {
		t.Error("expected the first seated player to hold the turn")
	}
	if state.IsTurnOf("blue") {
		t.Error("expected the second seated player not to hold the turn")
	}

	state.AdvanceTurn()

	if !state.IsTurnOf("blue") {
		t.Error("expected the turn to pass to the second player")
	}
	if state.Turn() != 2 {
		t.Errorf("expected turn counter = 2, got = %d", state.Turn())
	}
}

func TestPlayerLookup(t *testing.T) {
	state := NewState()
	state.SeatPlayer("red", testDeck())

	if _, err := state.Player("red"); err != nil {
		t.Errorf("expected seated player to be found, got error: %s", err)
	}

	_, err := state.Player("nobody")
	var logicErr *LogicError
	if !errors.As(err, &logicErr) {
		t.Fatalf("expected a LogicError, got %T", err)
	}
	if !errors.Is(err, ErrPlayerNotInGame) {
		t.Errorf("expected ErrPlayerNotInGame, got %v", err)
	}
}

func TestUnseatPlayer(t *testing.T) {
	state := NewState()
	state.SeatPlayer("red", testDeck())
	state.SeatPlayer("blue", testDeck())

	// Red holds the turn; unseating them must not wedge the match.
	state.UnseatPlayer("red")

	if _, err := state.Player("red"); err == nil {
		t.Error("expected the unseated player to be gone")
	}
	if !state.IsTurnOf("blue") {
		t.Error("expected the turn to pass to the remaining player")
	}

	// Unknown ids are a no-op.
	state.UnseatPlayer("ghost")
	if !state.IsTurnOf("blue") {
		t.Error("expected the remaining player to keep the turn")
	}
}

func TestDrawCard(t *testing.T) {
	state := NewState()
	state.SeatPlayer("red", testDeck())
	player, _ := state.Player("red")

	if !player.DrawCard() {
		t.Fatal("expected drawing from a fresh deck to succeed")
	}
	if len(player.Hand) != 1 || player.Hand[0].ID != "c1" {
		t.Errorf("expected hand to contain the top deck card, got %v", player.Hand)
	}
	if len(player.Deck) != 3 {
		t.Errorf("expected deck size = 3 after draw, got = %d", len(player.Deck))
	}

	// Exhaust the deck; a draw on empty must report failure.
	for player.DrawCard() {
	}
	if len(player.Deck) != 0 {
		t.Errorf("expected deck to be empty, got %d cards", len(player.Deck))
	}
	if player.DrawCard() {
		t.Error("expected drawing from an empty deck to fail")
	}
}

func TestPlaceCard(t *testing.T) {
	tests := map[string]struct {
		cardID    string
		wantedErr error
	}{
		"creature_play": {cardID: "c1"},
		"artifact_play": {cardID: "a1"},
		"not_in_hand":   {cardID: "c2", wantedErr: ErrCardNotInHand},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			state := NewState()
			state.SeatPlayer("red", testDeck())
			player, _ := state.Player("red")
			player.Hand = []CardRef{
				{ID: "c1", Category: CategoryCreature},
				{ID: "a1", Category: CategoryArtifact},
			}

			err := state.PlaceCard("red", tt.cardID)
			if tt.wantedErr != nil {
				if !errors.Is(err, tt.wantedErr) {
					t.Fatalf("expected error = %v, got = %v", tt.wantedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("PlaceCard() returned error: %s", err)
			}
			if player.HandContains(tt.cardID) {
				t.Error("expected the played card to leave the hand")
			}
		})
	}
}

func TestPlaceCardFullCategory(t *testing.T) {
	state := NewState()
	state.SeatPlayer("red", nil)
	player, _ := state.Player("red")

	for i := 0; i < ArtifactSlots; i++ {
		occupant := CardRef{ID: "filler", Category: CategoryArtifact}
		player.Board.Artifacts[i] = &occupant
	}
	player.Hand = []CardRef{{ID: "a9", Category: CategoryArtifact}}

	if err := state.PlaceCard("red", "a9"); err == nil {
		t.Fatal("expected placing into a full category to fail")
	}
	if !player.HandContains("a9") {
		t.Error("expected the card to return to the hand after a failed play")
	}
}

func TestBoardSlotCapacities(t *testing.T) {
	var board Board

	if got := len(board.Creatures); got != 6 {
		t.Errorf("expected 6 creature slots, got %d", got)
	}
	if got := len(board.Artifacts); got != 3 {
		t.Errorf("expected 3 artifact slots, got %d", got)
	}
	if got := len(board.Enchantments); got != 3 {
		t.Errorf("expected 3 enchantment slots, got %d", got)
	}
}

func TestSnapshotRedaction(t *testing.T) {
	state := NewState()
	state.SeatPlayer("red", testDeck())
	state.SeatPlayer("blue", testDeck())

	red, _ := state.Player("red")
	red.DrawCard()
	red.DrawCard()

	view, err := state.SnapshotFor("red")
	if err != nil {
		t.Fatalf("SnapshotFor() returned error: %s", err)
	}

	if view.You.ID != "red" {
		t.Errorf("expected owner view for red, got %s", view.You.ID)
	}
	if view.You.HandSize != 2 {
		t.Errorf("expected owner hand size = 2, got = %d", view.You.HandSize)
	}
	if view.You.CurrentHand[0] == nil || view.You.CurrentHand[1] == nil {
		t.Error("expected owner view to contain hand contents")
	}

	if len(view.Opponents) != 1 {
		t.Fatalf("expected exactly one opponent view, got %d", len(view.Opponents))
	}
	opponent := view.Opponents[0]
	if opponent.ID != "blue" {
		t.Errorf("expected opponent view for blue, got %s", opponent.ID)
	}

	// The public view type has no hand field at all; verify the counts agree
	// with the authoritative state.
	blue, _ := state.Player("blue")
	if opponent.HandSize != len(blue.Hand) || opponent.DeckSize != len(blue.Deck) {
		t.Errorf("opponent counts out of sync: hand %d/%d deck %d/%d",
			opponent.HandSize, len(blue.Hand), opponent.DeckSize, len(blue.Deck))
	}

	if _, err := state.SnapshotFor("nobody"); err == nil {
		t.Error("expected SnapshotFor() to fail for an unseated player")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	state := NewState()
	state.SeatPlayer("red", testDeck())

	before, _ := state.SnapshotFor("red")
	state.AdvanceTurn()
	after, _ := state.SnapshotFor("red")

	if diff := cmp.Diff(before.Turn+1, after.Turn); diff != "" {
		t.Errorf("expected snapshots to be independent; diff:\n%s", diff)
	}
}
