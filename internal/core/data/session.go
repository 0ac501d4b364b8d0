package data

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Session is the audit record of one player's presence in a match: when
// they connected, when they dropped, and how often they came back.
type Session struct {
	ID             uint64 `gorm:"primaryKey"`
	PlayerID       string `gorm:"index; not null"`
	Username       string
	RemoteAddr     string
	ConnectedAt    time.Time
	DisconnectedAt *time.Time
	Reconnects     int
}

// RecordConnect opens a session row for a freshly authenticated player.
func RecordConnect(db *gorm.DB, playerID, username, remoteAddr string) (*Session, error) {
	session := &Session{
		PlayerID:    playerID,
		Username:    username,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
	}
	if err := db.Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// RecordDisconnect stamps the open session for playerID as disconnected.
func RecordDisconnect(db *gorm.DB, playerID string) error {
	session, err := findOpenSession(db, playerID)
	if err != nil || session == nil {
		return err
	}
	now := time.Now()
	session.DisconnectedAt = &now
	return db.Save(session).Error
}

// RecordReconnect reopens the player's session and bumps the reconnect
// counter.
func RecordReconnect(db *gorm.DB, playerID, remoteAddr string) error {
	session, err := findLatestSession(db, playerID)
	if err != nil || session == nil {
		return err
	}
	session.DisconnectedAt = nil
	session.RemoteAddr = remoteAddr
	session.Reconnects++
	return db.Save(session).Error
}

func findOpenSession(db *gorm.DB, playerID string) (*Session, error) {
	var session Session
	err := db.Where("player_id = ? AND disconnected_at IS NULL", playerID).
		Order("connected_at desc").First(&session).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func findLatestSession(db *gorm.DB, playerID string) (*Session, error) {
	var session Session
	err := db.Where("player_id = ?", playerID).
		Order("connected_at desc").First(&session).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}
