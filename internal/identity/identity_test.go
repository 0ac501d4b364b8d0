package identity

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/arcana-project/arcana/internal/core"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testResolver(authURL, deckURL string) *Resolver {
	cfg := &core.Config{AuthServerURL: authURL, DeckServerURL: deckURL}
	return NewResolver(cfg, testLogger())
}

func profileHandler(t *testing.T, status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/player/profile" {
			t.Errorf("unexpected profile request path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") == "" {
			t.Error("expected bearer token on profile request")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestAuthenticate(t *testing.T) {
	tests := map[string]struct {
		status    int
		body      string
		wanted    *ProfileSummary
		wantedErr error
	}{
		"happy_path": {
			status: http.StatusOK,
			body:   `{"id": "p1", "username": "morgana", "level": 12}`,
			wanted: &ProfileSummary{ID: "p1", Username: "morgana", Level: 12},
		},
		"unauthorized": {
			status:    http.StatusUnauthorized,
			body:      `{}`,
			wantedErr: ErrUnauthorizedPlayer,
		},
		"service_failure": {
			status:    http.StatusInternalServerError,
			body:      "boom",
			wantedErr: ErrUnexpectedPlayer,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(profileHandler(t, tt.status, tt.body))
			defer srv.Close()

			profile, err := testResolver(srv.URL, "").Authenticate(context.Background(), "token")
			if tt.wantedErr != nil {
				if !errors.Is(err, tt.wantedErr) {
					t.Fatalf("expected error = %v, got = %v", tt.wantedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() returned error: %s", err)
			}
			if diff := cmp.Diff(tt.wanted, profile); diff != "" {
				t.Errorf("unexpected profile; diff:\n%s", diff)
			}
		})
	}
}

func TestAuthenticateMalformedBody(t *testing.T) {
	srv := httptest.NewServer(profileHandler(t, http.StatusOK, "not json"))
	defer srv.Close()

	_, err := testResolver(srv.URL, "").Authenticate(context.Background(), "token")
	var payloadErr *InvalidPayloadError
	if !errors.As(err, &payloadErr) {
		t.Fatalf("expected InvalidPayloadError, got %v", err)
	}
}

func TestFetchDeck(t *testing.T) {
	tests := map[string]struct {
		status    int
		body      string
		wantCards int
		wantedErr error
	}{
		"happy_path": {
			status:    http.StatusOK,
			body:      `{"id": "d1", "cards": [{"id": "c1"}, {"id": "c2"}]}`,
			wantCards: 2,
		},
		"not_found":      {status: http.StatusNotFound, wantedErr: ErrDeckNotFound},
		"unauthorized":   {status: http.StatusUnauthorized, wantedErr: ErrUnauthorizedDeck},
		"service_error":  {status: http.StatusBadGateway, wantedErr: ErrUnexpectedDeck},
		"malformed_body": {status: http.StatusOK, body: "not json", wantedErr: ErrInvalidDeckFormat},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/deck/d1" {
					t.Errorf("unexpected deck request path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			deck, err := testResolver("", srv.URL).FetchDeck(context.Background(), "d1", "token")
			if tt.wantedErr != nil {
				if !errors.Is(err, tt.wantedErr) {
					t.Fatalf("expected error = %v, got = %v", tt.wantedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchDeck() returned error: %s", err)
			}
			if len(deck.Cards) != tt.wantCards {
				t.Errorf("expected %d cards, got %d", tt.wantCards, len(deck.Cards))
			}
		})
	}
}

func TestNewConnection(t *testing.T) {
	authSrv := httptest.NewServer(profileHandler(t, http.StatusOK,
		`{"id": "p1", "username": "morgana", "level": 12}`))
	defer authSrv.Close()
	deckSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "d1", "cards": [{"id": "c1"}]}`))
	}))
	defer deckSrv.Close()

	payload, err := cbor.Marshal(ConnectionRequest{
		PlayerID:      "p1",
		AuthToken:     "token",
		CurrentDeckID: "d1",
	})
	if err != nil {
		t.Fatalf("error marshaling connect request: %s", err)
	}

	player, err := testResolver(authSrv.URL, deckSrv.URL).NewConnection(context.Background(), payload)
	if err != nil {
		t.Fatalf("NewConnection() returned error: %s", err)
	}

	if player.ID != "p1" || player.Username != "morgana" || player.Level != 12 {
		t.Errorf("unexpected player record: %+v", player)
	}
	if player.CurrentDeckID != "d1" || len(player.CurrentDeck.Cards) != 1 {
		t.Errorf("unexpected deck on player record: %+v", player.CurrentDeck)
	}
}

func TestNewConnectionUnauthorized(t *testing.T) {
	authSrv := httptest.NewServer(profileHandler(t, http.StatusUnauthorized, `{}`))
	defer authSrv.Close()

	payload, _ := cbor.Marshal(ConnectionRequest{PlayerID: "p1", AuthToken: "bad"})

	_, err := testResolver(authSrv.URL, "").NewConnection(context.Background(), payload)
	if !errors.Is(err, ErrUnauthorizedPlayer) {
		t.Fatalf("expected ErrUnauthorizedPlayer, got %v", err)
	}
}

func TestNewConnectionInvalidPayload(t *testing.T) {
	_, err := testResolver("", "").NewConnection(context.Background(), []byte("definitely not cbor"))
	var payloadErr *InvalidPayloadError
	if !errors.As(err, &payloadErr) {
		t.Fatalf("expected InvalidPayloadError, got %v", err)
	}
}

func TestReconnection(t *testing.T) {
	tests := map[string]struct {
		profileID string
		claimedID string
		wantedErr error
	}{
		"matching_ids":  {profileID: "p1", claimedID: "p1"},
		"id_mismatch":   {profileID: "p1", claimedID: "p2", wantedErr: ErrPlayerDoesNotMatch},
		"impersonation": {profileID: "someone-else", claimedID: "p1", wantedErr: ErrPlayerDoesNotMatch},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			authSrv := httptest.NewServer(profileHandler(t, http.StatusOK,
				`{"id": "`+tt.profileID+`", "username": "morgana", "level": 12}`))
			defer authSrv.Close()

			payload, _ := cbor.Marshal(ReconnectionRequest{PlayerID: tt.claimedID, AuthToken: "token"})

			id, err := testResolver(authSrv.URL, "").Reconnection(context.Background(), payload)
			if tt.wantedErr != nil {
				if !errors.Is(err, tt.wantedErr) {
					t.Fatalf("expected error = %v, got = %v", tt.wantedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Reconnection() returned error: %s", err)
			}
			if id != tt.profileID {
				t.Errorf("expected resolved id = %s, got = %s", tt.profileID, id)
			}
		})
	}
}
