package services

import (
	"encoding/base64"
	"fmt"
	"time"

	"manualqa/internal"
)

// authResponse is returned by sign-in and refresh
type authResponse struct {
	AccessToken  string                `json:"accessToken"`
	IDToken      string                `json:"idToken"`
	RefreshToken string                `json:"refreshToken"`
	ExpiresIn    int                   `json:"expiresIn"` // seconds
	User         *internal.UserProfile `json:"user,omitempty"`
}

func (r authResponse) bundle(now time.Time) internal.Bundle {
	b := internal.Bundle{
		AccessToken:   r.AccessToken,
		IdentityToken: r.IDToken,
		RefreshToken:  r.RefreshToken,
	}
	if r.ExpiresIn > 0 {
		b.Expiry = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return b
}

// Source is a manual passage an answer was drawn from
type Source struct {
	ManualID    string `json:"manualId" yaml:"manualId"`
	ManualTitle string `json:"manualTitle,omitempty" yaml:"manualTitle,omitempty"`
	Page        int    `json:"page,omitempty" yaml:"page,omitempty"`
	Excerpt     string `json:"excerpt,omitempty" yaml:"excerpt,omitempty"`
}

// AskRequest is a text question, optionally scoped to one manual
type AskRequest struct {
	Question       string `json:"question"`
	ManualID       string `json:"manualId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Answer is the reply to a text question
type Answer struct {
	Answer         string   `json:"answer" yaml:"answer"`
	Sources        []Source `json:"sources" yaml:"sources"`
	ConversationID string   `json:"conversationId,omitempty" yaml:"conversationId,omitempty"`
}

type voiceRequest struct {
	AudioBase64 string `json:"audioBase64"`
	Format      string `json:"format"`
	ManualID    string `json:"manualId,omitempty"`
}

// VoiceAnswer is the reply to a spoken question
type VoiceAnswer struct {
	Transcript string   `json:"transcript" yaml:"transcript"`
	Answer     string   `json:"answer" yaml:"answer"`
	Sources    []Source `json:"sources" yaml:"sources"`
}

// Manual is an uploaded document
type Manual struct {
	ID         string    `json:"id" yaml:"id"`
	Title      string    `json:"title" yaml:"title"`
	FileName   string    `json:"fileName" yaml:"fileName"`
	MIMEType   string    `json:"mimeType" yaml:"mimeType"`
	SizeBytes  int64     `json:"sizeBytes" yaml:"sizeBytes"`
	PageCount  int       `json:"pageCount,omitempty" yaml:"pageCount,omitempty"`
	Status     string    `json:"status,omitempty" yaml:"status,omitempty"`
	UploadedAt time.Time `json:"uploadedAt" yaml:"uploadedAt"`
}

type manualList struct {
	Manuals []Manual `json:"manuals"`
}

type uploadRequest struct {
	FileName      string `json:"fileName"`
	MIMEType      string `json:"mimeType"`
	ContentBase64 string `json:"contentBase64"`
	Title         string `json:"title,omitempty"`
}

// PageImage is one rendered page of a manual
type PageImage struct {
	ImageBase64 string `json:"imageBase64"`
	MIMEType    string `json:"mimeType"`
}

// Decode returns the raw image bytes
func (p *PageImage) Decode() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(p.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("decode page image: %w", err)
	}
	return data, nil
}

// Extension is the file extension matching MIMEType
func (p *PageImage) Extension() string {
	switch p.MIMEType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// Usage is the account's quota state
type Usage struct {
	QueriesToday      int       `json:"queriesToday" yaml:"queriesToday"`
	DailyLimit        int       `json:"dailyLimit" yaml:"dailyLimit"`
	ManualsStored     int       `json:"manualsStored" yaml:"manualsStored"`
	StorageBytes      int64     `json:"storageBytes" yaml:"storageBytes"`
	StorageLimitBytes int64     `json:"storageLimitBytes" yaml:"storageLimitBytes"`
	ResetsAt          time.Time `json:"resetsAt" yaml:"resetsAt"`
}

// QueriesRemaining is never negative. A zero limit means unlimited and
// reports -1.
func (u *Usage) QueriesRemaining() int {
	if u.DailyLimit <= 0 {
		return -1
	}
	if left := u.DailyLimit - u.QueriesToday; left > 0 {
		return left
	}
	return 0
}

// StoragePercent is the share of storage in use, 0-100
func (u *Usage) StoragePercent() float64 {
	if u.StorageLimitBytes <= 0 {
		return 0
	}
	pct := float64(u.StorageBytes) / float64(u.StorageLimitBytes) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
