package model

type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price,omitempty"`
	Status      string    `json:"status,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   Timestamp `json:"created_at"`
}

type ProductSubmission struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Category    string   `json:"category,omitempty"`
	ImageURLs   []string `json:"image_urls,omitempty"`
}

type ProductReview struct {
	Note   string `json:"note,omitempty"`
	Reason string `json:"reason,omitempty"`
}
