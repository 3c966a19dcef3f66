package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"gorm.io/driver/postgres"
	"placeprep/pkg/domain"
)

const migrateLockID int64 = 61046104

// Numeric ID bases per role. The first reserved ID for a role is base+1.
func roleBase(role domain.UserRole) int64 {
	switch role {
	case domain.RoleStudent:
		return 1000
	case domain.RoleTeacher:
		return 2000
	default:
		return 3000
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory
// lock so concurrent replicas do not race the schema changes.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&UserModel{}, &RoleCounterModel{}, &QuestionModel{}, &StudyMaterialModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Create(&model).Error
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// NextUserID reserves the next ID for a role with a single atomic
// increment on the counter row. The counter is seeded at the role base the
// first time a role registers.
func (s *GormStore) NextUserID(role domain.UserRole) (string, error) {
	var next int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		seed := RoleCounterModel{Role: string(role), LastID: roleBase(role)}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return fmt.Errorf("seed role counter: %w", err)
		}
		row := tx.Raw(
			"UPDATE role_counter_models SET last_id = last_id + 1 WHERE role = ? RETURNING last_id",
			string(role),
		).Row()
		if err := row.Scan(&next); err != nil {
			return fmt.Errorf("reserve role id: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(next, 10), nil
}

// SetUserEmbedding caches the reference-image embedding for a user.
func (s *GormStore) SetUserEmbedding(id string, embedding []float32) error {
	if len(embedding) != faceEmbeddingDim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), faceEmbeddingDim)
	}
	vec := pgvector.NewVector(embedding)
	return s.db.Model(&UserModel{}).Where("id = ?", id).Update("embedding", &vec).Error
}

// GetUserEmbedding returns the cached reference embedding, if any.
func (s *GormStore) GetUserEmbedding(id string) ([]float32, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	if model.Embedding == nil {
		return nil, false, nil
	}
	return model.Embedding.Slice(), true, nil
}

// SaveQuestion stores a single question.
func (s *GormStore) SaveQuestion(q domain.Question) error {
	model := questionToModel(q)
	return s.db.Create(&model).Error
}

// SaveQuestions stores a batch in one insert.
func (s *GormStore) SaveQuestions(questions []domain.Question) error {
	if len(questions) == 0 {
		return nil
	}
	models := make([]QuestionModel, 0, len(questions))
	for _, q := range questions {
		models = append(models, questionToModel(q))
	}
	return s.db.CreateInBatches(&models, 200).Error
}

// ListQuestions returns all questions, newest first.
func (s *GormStore) ListQuestions() ([]domain.Question, error) {
	return s.listQuestions()
}

// ListQuestionsByUser returns a user's questions, newest first.
func (s *GormStore) ListQuestionsByUser(userID string) ([]domain.Question, error) {
	return s.listQuestions("user_id = ?", userID)
}

func (s *GormStore) listQuestions(conds ...any) ([]domain.Question, error) {
	var models []QuestionModel
	tx := s.db.Order("timestamp DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Question, 0, len(models))
	for _, m := range models {
		res = append(res, questionFromModel(m))
	}
	return res, nil
}

// SaveMaterial stores study-material metadata.
func (s *GormStore) SaveMaterial(m domain.StudyMaterial) error {
	model := materialToModel(m)
	return s.db.Create(&model).Error
}

// GetMaterial retrieves one material.
func (s *GormStore) GetMaterial(id string) (domain.StudyMaterial, bool, error) {
	var model StudyMaterialModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.StudyMaterial{}, false, nil
		}
		return domain.StudyMaterial{}, false, err
	}
	return materialFromModel(model), true, nil
}

// ListMaterials returns all materials, newest first.
func (s *GormStore) ListMaterials() ([]domain.StudyMaterial, error) {
	return s.listMaterials()
}

// ListMaterialsByUser returns one uploader's materials, newest first.
func (s *GormStore) ListMaterialsByUser(userID string) ([]domain.StudyMaterial, error) {
	return s.listMaterials("user_id = ?", userID)
}

func (s *GormStore) listMaterials(conds ...any) ([]domain.StudyMaterial, error) {
	var models []StudyMaterialModel
	tx := s.db.Order("created_at DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.StudyMaterial, 0, len(models))
	for _, m := range models {
		res = append(res, materialFromModel(m))
	}
	return res, nil
}

// DeleteMaterial removes the metadata row and runs cleanup in the same
// transaction. When cleanup fails the row delete is rolled back.
func (s *GormStore) DeleteMaterial(id string, cleanup func(domain.StudyMaterial) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var model StudyMaterialModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Delete(&StudyMaterialModel{}, "id = ?", id).Error; err != nil {
			return err
		}
		if cleanup != nil {
			if err := cleanup(materialFromModel(model)); err != nil {
				return err
			}
		}
		return nil
	})
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:        u.ID,
		Role:      string(u.Role),
		ImageURL:  u.ImageURL,
		CreatedAt: u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:        m.ID,
		Role:      domain.UserRole(m.Role),
		ImageURL:  m.ImageURL,
		CreatedAt: m.CreatedAt,
	}
}

func questionToModel(q domain.Question) QuestionModel {
	source, _ := json.Marshal(q.Source)
	return QuestionModel{
		ID:        q.ID,
		UserID:    q.UserID,
		Question:  q.Question,
		Subject:   q.Subject,
		Source:    source,
		Timestamp: q.Timestamp,
	}
}

func questionFromModel(m QuestionModel) domain.Question {
	var source domain.QuestionSource
	if len(m.Source) > 0 {
		_ = json.Unmarshal(m.Source, &source)
	}
	return domain.Question{
		ID:        m.ID,
		UserID:    m.UserID,
		Question:  m.Question,
		Subject:   m.Subject,
		Source:    source,
		Timestamp: m.Timestamp,
	}
}

func materialToModel(m domain.StudyMaterial) StudyMaterialModel {
	return StudyMaterialModel{
		ID:         m.ID,
		UserID:     m.UserID,
		Name:       m.Name,
		Subject:    m.Subject,
		FileURL:    m.FileURL,
		StorageKey: m.StorageKey,
		CreatedAt:  m.CreatedAt,
	}
}

func materialFromModel(m StudyMaterialModel) domain.StudyMaterial {
	return domain.StudyMaterial{
		ID:         m.ID,
		UserID:     m.UserID,
		Name:       m.Name,
		Subject:    m.Subject,
		FileURL:    m.FileURL,
		StorageKey: m.StorageKey,
		CreatedAt:  m.CreatedAt,
	}
}
