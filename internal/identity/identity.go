// Package identity resolves connecting players against the external profile
// and deck inventory services. It owns the deserialization of the connect
// and reconnect request payloads and the HTTP calls required to turn them
// into an authenticated Player.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"

	"github.com/arcana-project/arcana/internal/core"
	"github.com/arcana-project/arcana/internal/game"
)

var (
	// ErrUnauthorizedPlayer indicates the profile service rejected the token.
	ErrUnauthorizedPlayer = errors.New("player token was not authorized")
	// ErrUnexpectedPlayer indicates a profile service or transport failure.
	ErrUnexpectedPlayer = errors.New("unexpected error fetching player profile")
	// ErrPlayerDoesNotMatch indicates a reconnect whose resolved profile id
	// differs from the id claimed in the payload.
	ErrPlayerDoesNotMatch = errors.New("given player id does not match profile")
	// ErrDeckNotFound indicates the requested deck does not exist.
	ErrDeckNotFound = errors.New("deck was not found")
	// ErrInvalidDeckFormat indicates the deck service returned a body that
	// could not be deserialized.
	ErrInvalidDeckFormat = errors.New("deck format invalid")
	// ErrUnauthorizedDeck indicates the player may not access the deck.
	ErrUnauthorizedDeck = errors.New("player does not have permission to access deck")
	// ErrUnexpectedDeck indicates a deck service or transport failure.
	ErrUnexpectedDeck = errors.New("unexpected deck error")
)

// InvalidPayloadError indicates a connect/reconnect payload that could not
// be deserialized, carrying the decoder's reason.
type InvalidPayloadError struct {
	Reason string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid player payload: %s", e.Reason)
}

// ConnectionRequest is the payload of a Connect packet.
type ConnectionRequest struct {
	PlayerID      string `cbor:"player_id"`
	AuthToken     string `cbor:"auth_token"`
	CurrentDeckID string `cbor:"current_deck_id"`
}

// ReconnectionRequest is the payload of a Reconnect packet.
type ReconnectionRequest struct {
	PlayerID  string `cbor:"player_id"`
	AuthToken string `cbor:"auth_token"`
}

// ProfileSummary is the subset of the player profile returned by the
// authentication service.
type ProfileSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Level    uint32 `json:"level"`
}

// Player is the authenticated player record owned by a connection. It is
// built once per successful resolution and never mutated afterwards.
type Player struct {
	ID            string
	Username      string
	Level         uint32
	Token         string
	CurrentDeckID string
	CurrentDeck   game.Deck
}

// Resolver performs the profile and deck lookups against the external
// services configured for this server.
type Resolver struct {
	authServerURL string
	deckServerURL string
	httpClient    *http.Client
	logger        *logrus.Logger
}

func NewResolver(config *core.Config, logger *logrus.Logger) *Resolver {
	return &Resolver{
		authServerURL: config.AuthServerURL,
		deckServerURL: config.DeckServerURL,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
	}
}

// Authenticate fetches the profile summary for the bearer token. A 401 maps
// to ErrUnauthorizedPlayer so callers can distinguish a bad token from a
// service failure.
func (r *Resolver) Authenticate(ctx context.Context, token string) (*ProfileSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.authServerURL+"/api/player/profile", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedPlayer, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Errorf("[identity] profile fetch error: %s", err)
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedPlayer, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorizedPlayer
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(resp.Body)
		r.logger.Errorf("[identity] profile service returned %d: %s", resp.StatusCode, body)
		return nil, ErrUnexpectedPlayer
	}

	var profile ProfileSummary
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, &InvalidPayloadError{Reason: "failed to deserialize player profile"}
	}
	return &profile, nil
}

// FetchDeck retrieves deckID from the deck inventory service on behalf of
// the token's owner.
func (r *Resolver) FetchDeck(ctx context.Context, deckID, token string) (*game.Deck, error) {
	url := fmt.Sprintf("%s/api/deck/%s", r.deckServerURL, deckID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedDeck, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Errorf("[identity] deck fetch error: %s", err)
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedDeck, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var deck game.Deck
		if err := json.NewDecoder(resp.Body).Decode(&deck); err != nil {
			return nil, ErrInvalidDeckFormat
		}
		return &deck, nil
	case http.StatusNotFound:
		return nil, ErrDeckNotFound
	case http.StatusUnauthorized:
		return nil, ErrUnauthorizedDeck
	default:
		body, _ := io.ReadAll(resp.Body)
		r.logger.Errorf("[identity] deck service returned %d: %s", resp.StatusCode, body)
		return nil, ErrUnexpectedDeck
	}
}

// NewConnection resolves a Connect payload into a fully provisioned Player:
// profile first, then deck, either failure short-circuiting with its
// specific error.
func (r *Resolver) NewConnection(ctx context.Context, payload []byte) (*Player, error) {
	var request ConnectionRequest
	if err := cbor.Unmarshal(payload, &request); err != nil {
		r.logger.Errorf("[identity] %s", err)
		return nil, &InvalidPayloadError{Reason: fmt.Sprintf("%s (connect request)", err)}
	}

	profile, err := r.Authenticate(ctx, request.AuthToken)
	if err != nil {
		return nil, err
	}
	r.logger.Infof("[identity] fetched `%s`'s profile", profile.Username)

	deck, err := r.FetchDeck(ctx, request.CurrentDeckID, request.AuthToken)
	if err != nil {
		return nil, err
	}
	r.logger.Infof("[identity] fetched `%s`'s deck with %d cards", profile.Username, len(deck.Cards))

	return &Player{
		ID:            request.PlayerID,
		Username:      profile.Username,
		Level:         profile.Level,
		Token:         request.AuthToken,
		CurrentDeckID: request.CurrentDeckID,
		CurrentDeck:   *deck,
	}, nil
}

// Reconnection resolves a Reconnect payload to the owning player id. The
// resolved profile id must match the id claimed in the payload; a mismatch
// is ErrPlayerDoesNotMatch rather than a generic auth failure.
func (r *Resolver) Reconnection(ctx context.Context, payload []byte) (string, error) {
	var request ReconnectionRequest
	if err := cbor.Unmarshal(payload, &request); err != nil {
		r.logger.Errorf("[identity] %s", err)
		return "", &InvalidPayloadError{Reason: fmt.Sprintf("%s (reconnect request)", err)}
	}

	profile, err := r.Authenticate(ctx, request.AuthToken)
	if err != nil {
		return "", err
	}
	if profile.ID != request.PlayerID {
		return "", ErrPlayerDoesNotMatch
	}
	return profile.ID, nil
}
