package model

// FeedItem is one MediaRecord as served to polling devices.
type FeedItem struct {
	ID      int64  `json:"id"`
	OwnerID int64  `json:"ownerId"`
	Email   string `json:"email"`
	Image   string `json:"image"`
}
