package store

import (
	"sort"
	"strconv"
	"sync"

	"placeprep/pkg/domain"
)

// MemoryStore keeps everything in-process. Used by tests and local runs
// without Postgres.
type MemoryStore struct {
	mu         sync.Mutex
	users      map[string]domain.User
	embeddings map[string][]float32
	counters   map[domain.UserRole]int64
	questions  []domain.Question
	materials  map[string]domain.StudyMaterial
	matOrder   []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]domain.User),
		embeddings: make(map[string][]float32),
		counters:   make(map[domain.UserRole]int64),
		materials:  make(map[string]domain.StudyMaterial),
	}
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) NextUserID(role domain.UserRole) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.counters[role]
	if !ok {
		last = roleBase(role)
	}
	last++
	m.counters[role] = last
	return strconv.FormatInt(last, 10), nil
}

func (m *MemoryStore) SetUserEmbedding(id string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddings[id] = append([]float32(nil), embedding...)
	return nil
}

func (m *MemoryStore) GetUserEmbedding(id string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	emb, ok := m.embeddings[id]
	if !ok {
		return nil, false, nil
	}
	return append([]float32(nil), emb...), true, nil
}

func (m *MemoryStore) SaveQuestion(q domain.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions = append(m.questions, q)
	return nil
}

func (m *MemoryStore) SaveQuestions(questions []domain.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions = append(m.questions, questions...)
	return nil
}

func (m *MemoryStore) ListQuestions() ([]domain.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortQuestions(append([]domain.Question(nil), m.questions...)), nil
}

func (m *MemoryStore) ListQuestionsByUser(userID string) ([]domain.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Question
	for _, q := range m.questions {
		if q.UserID == userID {
			out = append(out, q)
		}
	}
	return sortQuestions(out), nil
}

func (m *MemoryStore) SaveMaterial(mat domain.StudyMaterial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.materials[mat.ID]; !exists {
		m.matOrder = append(m.matOrder, mat.ID)
	}
	m.materials[mat.ID] = mat
	return nil
}

func (m *MemoryStore) GetMaterial(id string) (domain.StudyMaterial, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mat, ok := m.materials[id]
	return mat, ok, nil
}

func (m *MemoryStore) ListMaterials() ([]domain.StudyMaterial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.StudyMaterial, 0, len(m.matOrder))
	for _, id := range m.matOrder {
		if mat, ok := m.materials[id]; ok {
			out = append(out, mat)
		}
	}
	return sortMaterials(out), nil
}

func (m *MemoryStore) ListMaterialsByUser(userID string) ([]domain.StudyMaterial, error) {
	all, _ := m.ListMaterials()
	out := all[:0]
	for _, mat := range all {
		if mat.UserID == userID {
			out = append(out, mat)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteMaterial(id string, cleanup func(domain.StudyMaterial) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mat, ok := m.materials[id]
	if !ok {
		return ErrNotFound
	}
	// Rollback semantics of the transactional store: the record survives
	// when cleanup fails.
	if cleanup != nil {
		if err := cleanup(mat); err != nil {
			return err
		}
	}
	delete(m.materials, id)
	return nil
}

func sortQuestions(qs []domain.Question) []domain.Question {
	sort.SliceStable(qs, func(i, j int) bool {
		return qs[i].Timestamp.After(qs[j].Timestamp)
	})
	return qs
}

func sortMaterials(ms []domain.StudyMaterial) []domain.StudyMaterial {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].CreatedAt.After(ms[j].CreatedAt)
	})
	return ms
}
