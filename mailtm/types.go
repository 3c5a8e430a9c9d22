package mailtm

import "time"

// Domain is a sending domain offered by the provider
type Domain struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	IsActive  bool      `json:"isActive"`
	IsPrivate bool      `json:"isPrivate"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Account is the provider's canonical account record
type Account struct {
	ID         string    `json:"id"`
	Address    string    `json:"address"`
	Quota      int64     `json:"quota"`
	Used       int64     `json:"used"`
	IsDisabled bool      `json:"isDisabled"`
	IsDeleted  bool      `json:"isDeleted"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Address is a name/address pair as it appears in message envelopes
type Address struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Message is a single email message. List calls return the summary fields
// only; Get fills in the bodies.
type Message struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"accountId"`
	MsgID          string    `json:"msgid"`
	From           Address   `json:"from"`
	To             []Address `json:"to"`
	Subject        string    `json:"subject"`
	Intro          string    `json:"intro"`
	Seen           bool      `json:"seen"`
	HasAttachments bool      `json:"hasAttachments"`
	Text           string    `json:"text,omitempty"`
	HTML           []string  `json:"html,omitempty"`
	Size           int64     `json:"size"`
	CreatedAt      time.Time `json:"createdAt"`
}

// hydraCollection is the shape of the provider's collection responses
type hydraCollection[T any] struct {
	Members    []T `json:"hydra:member"`
	TotalItems int `json:"hydra:totalItems"`
}

type createAccountRequest struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

type tokenResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}
