package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Face embeddings from the recognition model are 128-dimensional.
const faceEmbeddingDim = 128

// GORM models used for persistence.
type UserModel struct {
	ID       string `gorm:"primaryKey"`
	Role     string `gorm:"not null;index"`
	ImageURL string `gorm:"not null"`
	// Reference embedding computed once at registration so login does not
	// re-embed the stored image on every attempt.
	Embedding *pgvector.Vector `gorm:"type:vector(128)"`
	CreatedAt time.Time        `gorm:"not null"`
}

// RoleCounterModel backs atomic role-scoped ID reservation.
type RoleCounterModel struct {
	Role   string `gorm:"primaryKey"`
	LastID int64  `gorm:"not null"`
}

type QuestionModel struct {
	ID        string         `gorm:"primaryKey"`
	UserID    string         `gorm:"not null;index"`
	Question  string         `gorm:"type:text;not null"`
	Subject   string         `gorm:"not null"`
	Source    datatypes.JSON `gorm:"type:jsonb"`
	Timestamp time.Time      `gorm:"not null;index"`
}

type StudyMaterialModel struct {
	ID         string    `gorm:"primaryKey"`
	UserID     string    `gorm:"not null;index"`
	Name       string    `gorm:"not null"`
	Subject    string    `gorm:"not null"`
	FileURL    string    `gorm:"not null"`
	StorageKey string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;index"`
}
