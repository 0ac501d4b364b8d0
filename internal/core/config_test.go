package core

import "testing"

func TestConfig_GameServerAddress(t *testing.T) {
	cfg := &Config{Hostname: "127.0.0.1"}
	cfg.GameServer.Port = 7878

	addr := cfg.GameServerAddress()
	expected := "127.0.0.1:7878"
	if addr != expected {
		t.Errorf("GameServerAddress() want = %s, got = %s", expected, addr)
	}
}
