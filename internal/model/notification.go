package model

type Notification struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	AuctionID int64     `json:"auction_id,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt Timestamp `json:"created_at"`
}

type UnreadCount struct {
	Count int `json:"count"`
}
