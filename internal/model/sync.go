package model

import "time"

// SyncItemType names the category of a write recorded for later replay
type SyncItemType string

const (
	SyncCreateListing   SyncItemType = "create_listing"
	SyncUpdateListing   SyncItemType = "update_listing"
	SyncSendMessage     SyncItemType = "send_message"
	SyncUpdateProfile   SyncItemType = "update_profile"
	SyncFavoriteListing SyncItemType = "favorite_listing"
)

// Valid reports whether t is a known sync item type
func (t SyncItemType) Valid() bool {
	switch t {
	case SyncCreateListing, SyncUpdateListing, SyncSendMessage, SyncUpdateProfile, SyncFavoriteListing:
		return true
	default:
		return false
	}
}

// SyncItem is a write intent appended to the offline queue
type SyncItem struct {
	ID        string       `json:"id"`
	Type      SyncItemType `json:"type"`
	Data      any          `json:"data"`
	CreatedAt time.Time    `json:"created_at"`
}

// SyncQueueStats summarises the offline queue for operators
type SyncQueueStats struct {
	Pending int64                  `json:"pending"`
	ByType  map[SyncItemType]int64 `json:"by_type"`
}
