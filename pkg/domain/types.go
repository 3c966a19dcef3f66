package domain

import "time"

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

type SourceKind string

const (
	SourceText SourceKind = "text"
	SourcePDF  SourceKind = "pdf"
)

// User is an identity registered through face capture. The ID is a
// role-scoped numeric string assigned at registration.
type User struct {
	ID        string    `json:"id"`
	Role      UserRole  `json:"userDesignation"`
	ImageURL  string    `json:"imageurl"`
	CreatedAt time.Time `json:"createdAt"`
}

// QuestionRecord is a segmented, not-yet-persisted question. The number is
// whatever the source numbering said; it is not guaranteed unique or
// contiguous.
type QuestionRecord struct {
	Number string     `json:"number"`
	Text   string     `json:"text"`
	Kind   SourceKind `json:"sourceKind"`
}

// Question is a persisted question. Immutable after creation.
type Question struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userID"`
	Question  string         `json:"question"`
	Subject   string         `json:"subject"`
	Source    QuestionSource `json:"source,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// QuestionSource records where a persisted question came from.
type QuestionSource struct {
	Number string     `json:"number,omitempty"`
	Kind   SourceKind `json:"kind,omitempty"`
}

// StudyMaterial is an uploaded document whose binary lives in object
// storage. FileURL must resolve to a live object while the record exists.
type StudyMaterial struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Name       string    `json:"name"`
	Subject    string    `json:"subject"`
	FileURL    string    `json:"fileUrl"`
	StorageKey string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ConversationTurn is one role-tagged message of an AI Q&A exchange.
// Turns are ephemeral; the client holds them for a session and supplies
// them as ordered context.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
