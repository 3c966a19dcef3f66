package store

import (
	"errors"

	"placeprep/pkg/domain"
)

// ErrNotFound is returned by delete operations when the target record does
// not exist.
var ErrNotFound = errors.New("record not found")

// Store defines persistence operations for users, questions, and study
// materials.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	// NextUserID reserves the next free numeric ID for a role. The
	// reservation is atomic: two concurrent registrations of the same role
	// never observe the same value.
	NextUserID(role domain.UserRole) (string, error)
	SetUserEmbedding(id string, embedding []float32) error
	GetUserEmbedding(id string) ([]float32, bool, error)

	// questions
	SaveQuestion(domain.Question) error
	SaveQuestions([]domain.Question) error
	ListQuestions() ([]domain.Question, error)
	ListQuestionsByUser(userID string) ([]domain.Question, error)

	// study materials
	SaveMaterial(domain.StudyMaterial) error
	GetMaterial(id string) (domain.StudyMaterial, bool, error)
	ListMaterials() ([]domain.StudyMaterial, error)
	ListMaterialsByUser(userID string) ([]domain.StudyMaterial, error)
	// DeleteMaterial removes the metadata record and runs cleanup inside
	// the same transaction. A cleanup error rolls the record back, so the
	// record and the remote object go away together or not at all.
	DeleteMaterial(id string, cleanup func(domain.StudyMaterial) error) error
}
