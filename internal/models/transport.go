package models

import (
	"encoding/json"
	"time"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/service"
)

type UserReq struct {
	Name     string  `json:"name" validate:"required"`
	Email    string  `json:"email" validate:"required,email"`
	Password *string `json:"password" validate:"omitempty,min=8"`
}

type LoginReq struct {
	Token string `json:"token" validate:"required"`
}

type PasswordLoginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RenewReq may be empty when the update token comes in the Authorization header.
type RenewReq struct {
	UpdateToken string `json:"update_token"`
}

type NumberReq struct {
	Number string `json:"number" validate:"required"`
}

type EventReq struct {
	Title       string   `json:"title" validate:"required"`
	HostName    string   `json:"host_name" validate:"required"`
	Date        int64    `json:"date" validate:"required,gt=0"`
	Location    string   `json:"location" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Categories  []uint64 `json:"categories"`
	Image       string   `json:"image" validate:"required"`
}

type BucketReq struct {
	Description string `json:"description" validate:"required"`
}

type BucketUpdateReq struct {
	Description *string `json:"description" validate:"omitempty,min=1"`
	Status      *bool   `json:"status"`
}

type CategoryReq struct {
	Description string `json:"description" validate:"required"`
	Color       string `json:"color" validate:"required"`
}

type CredentialResp struct {
	SessionToken      string    `json:"session_token"`
	SessionExpiration time.Time `json:"session_expiration"`
	UpdateToken       string    `json:"update_token"`
}

type UserResp struct {
	ID                  uint64       `json:"id"`
	Name                string       `json:"name"`
	Email               string       `json:"email"`
	PhoneNumber         *string      `json:"number,omitempty"`
	SavedEvents         []EventResp  `json:"saved_events"`
	SavedBuckets        []BucketResp `json:"saved_buckets"`
	CreatedEvents       []EventResp  `json:"created_events"`
	CompletedBucketList []BucketResp `json:"completed_bucket_list"`
	*CredentialResp
}

// SessionResp is what login and renewal hand back: only the owner ever sees it.
type SessionResp struct {
	ID uint64 `json:"id"`
	CredentialResp
}

type EventResp struct {
	ID          uint64         `json:"id"`
	Title       string         `json:"title"`
	HostName    string         `json:"host_name"`
	Date        int64          `json:"date"`
	Location    string         `json:"location"`
	Description string         `json:"description"`
	Image       string         `json:"image"`
	Categories  []CategoryResp `json:"categories"`
}

type BucketResp struct {
	ID          uint64 `json:"id"`
	Description string `json:"description"`
	Status      bool   `json:"status"`
}

type CategoryResp struct {
	ID          uint64 `json:"id"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// ItemResp renders service.Item with a "type" discriminator next to the payload fields.
type ItemResp struct {
	Kind   service.ItemKind
	Event  *EventResp
	Bucket *BucketResp
}

type ErrorResp struct {
	Error string `json:"error"`
}

func (r ItemResp) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case service.ItemEvent:
		return json.Marshal(struct {
			Type string `json:"type"`
			*EventResp
		}{Type: string(r.Kind), EventResp: r.Event})
	default:
		return json.Marshal(struct {
			Type string `json:"type"`
			*BucketResp
		}{Type: string(r.Kind), BucketResp: r.Bucket})
	}
}

func NewCredentialResp(c db.SessionCredential) CredentialResp {
	return CredentialResp{
		SessionToken:      c.SessionToken,
		SessionExpiration: c.SessionExpiration,
		UpdateToken:       c.UpdateToken,
	}
}

func NewSessionResp(u *db.User) SessionResp {
	return SessionResp{
		ID:             u.ID,
		CredentialResp: NewCredentialResp(u.Credential),
	}
}

// NewUserResp renders a profile; the credential is included only when withCredential is set.
func NewUserResp(p *service.Profile, withCredential bool) UserResp {
	resp := UserResp{
		ID:                  p.User.ID,
		Name:                p.User.Name,
		Email:               p.User.Email,
		PhoneNumber:         p.User.PhoneNumber,
		SavedEvents:         NewEventResps(p.SavedEvents),
		SavedBuckets:        NewBucketResps(p.SavedBuckets),
		CreatedEvents:       NewEventResps(p.CreatedEvents),
		CompletedBucketList: NewBucketResps(p.CompletedBuckets),
	}
	if withCredential {
		cred := NewCredentialResp(p.User.Credential)
		resp.CredentialResp = &cred
	}
	return resp
}

func NewEventResp(e *db.Event) EventResp {
	categories := make([]CategoryResp, len(e.Categories))
	for i := range e.Categories {
		categories[i] = NewCategoryResp(&e.Categories[i])
	}
	return EventResp{
		ID:          e.ID,
		Title:       e.Title,
		HostName:    e.HostName,
		Date:        e.Date,
		Location:    e.Location,
		Description: e.Description,
		Image:       e.Asset.URL(),
		Categories:  categories,
	}
}

func NewEventResps(events []db.Event) []EventResp {
	resp := make([]EventResp, len(events))
	for i := range events {
		resp[i] = NewEventResp(&events[i])
	}
	return resp
}

func NewBucketResp(b *db.BucketItem) BucketResp {
	return BucketResp{
		ID:          b.ID,
		Description: b.Description,
		Status:      b.Status,
	}
}

func NewBucketResps(buckets []db.BucketItem) []BucketResp {
	resp := make([]BucketResp, len(buckets))
	for i := range buckets {
		resp[i] = NewBucketResp(&buckets[i])
	}
	return resp
}

func NewCategoryResp(c *db.Category) CategoryResp {
	return CategoryResp{
		ID:          c.ID,
		Description: c.Description,
		Color:       c.Color,
	}
}

func NewCategoryResps(categories []db.Category) []CategoryResp {
	resp := make([]CategoryResp, len(categories))
	for i := range categories {
		resp[i] = NewCategoryResp(&categories[i])
	}
	return resp
}

func NewItemResp(item *service.Item) ItemResp {
	resp := ItemResp{Kind: item.Kind}
	if item.Event != nil {
		e := NewEventResp(item.Event)
		resp.Event = &e
	}
	if item.Bucket != nil {
		b := NewBucketResp(item.Bucket)
		resp.Bucket = &b
	}
	return resp
}
