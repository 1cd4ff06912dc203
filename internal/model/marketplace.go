package model

import "time"

// Listing is a marketplace listing as returned by the backend
type Listing struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"seller_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency,omitempty"`
	CategoryID  string    `json:"category_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	Images      []string  `json:"images,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// ListingFilters narrows a listing query
type ListingFilters struct {
	Category string   `json:"category,omitempty"`
	SellerID string   `json:"seller_id,omitempty"`
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
	Status   string   `json:"status,omitempty"`
	SortBy   string   `json:"sort_by,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}

// ListingInput carries the fields accepted when creating a listing
type ListingInput struct {
	SellerID    string   `json:"seller_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency,omitempty"`
	CategoryID  string   `json:"category_id,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// Message is a chat message inside a conversation
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageInput carries the fields accepted when sending a message
type MessageInput struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
}

// Category is a listing category
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
	Icon     string `json:"icon,omitempty"`
}

// Profile is a user's public profile
type Profile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Location    string    `json:"location,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// ProfileInput carries the editable profile fields
type ProfileInput struct {
	DisplayName string `json:"display_name,omitempty"`
	Bio         string `json:"bio,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Location    string `json:"location,omitempty"`
}
