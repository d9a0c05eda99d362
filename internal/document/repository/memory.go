package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/estatio/docrender/internal/document"
)

// MemoryTemplateRepo is an in-memory TemplateRepository used for tests and
// when no database is configured.
type MemoryTemplateRepo struct {
	mu    sync.RWMutex
	store map[string]document.Template
	keys  map[string]string // selection key -> id
	now   func() time.Time
}

func NewMemoryTemplateRepo() *MemoryTemplateRepo {
	return &MemoryTemplateRepo{
		store: make(map[string]document.Template),
		keys:  make(map[string]string),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryTemplateRepo) Create(ctx context.Context, t *document.Template) (string, error) {
	if err := prepareTemplate(t, m.now()); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.store[t.ID]; exists {
		return "", ErrAlreadyExists
	}
	if _, exists := m.keys[t.Key()]; exists {
		return "", ErrAlreadyExists
	}
	m.store[t.ID] = cloneTemplate(*t)
	m.keys[t.Key()] = t.ID
	return t.ID, nil
}

func (m *MemoryTemplateRepo) Get(ctx context.Context, id string) (*document.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneTemplate(t)
	return &out, nil
}

func (m *MemoryTemplateRepo) List(ctx context.Context, typeRef string) ([]document.Template, error) {
	return m.filter(func(t document.Template) bool {
		return typeRef == "" || t.Type == typeRef
	}), nil
}

func (m *MemoryTemplateRepo) FindByTypeAndAtPath(ctx context.Context, typeRef, path string) ([]document.Template, error) {
	at := document.NormalizePath(path)
	out := m.filter(func(t document.Template) bool {
		return t.Type == typeRef && t.ScopePath == at
	})
	sortByDateDesc(out)
	return out, nil
}

func (m *MemoryTemplateRepo) FindTemplatesByTypeAndPathPrefixAndCurrent(ctx context.Context, typeRef, path string, asOf time.Time) ([]document.Template, error) {
	return m.filter(func(t document.Template) bool {
		return t.Type == typeRef && !t.Retired &&
			document.Applies(t.ScopePath, path) && t.EffectiveAt(asOf)
	}), nil
}

func (m *MemoryTemplateRepo) UpdateContent(ctx context.Context, id string, content document.Content) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return 0, ErrNotFound
	}
	changed, err := checkContentUpdate(t.Content, content)
	if err != nil {
		return 0, err
	}
	if !changed {
		return t.Revision, nil
	}
	t.Content = content
	t.Revision++
	t.UpdatedAt = m.now()
	m.store[id] = cloneTemplate(t)
	return t.Revision, nil
}

func (m *MemoryTemplateRepo) GetRevision(ctx context.Context, id string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.store[id]
	if !ok {
		return 0, ErrNotFound
	}
	return t.Revision, nil
}

func (m *MemoryTemplateRepo) Retire(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	t.Retired = true
	t.UpdatedAt = m.now()
	m.store[id] = t
	return nil
}

func (m *MemoryTemplateRepo) filter(keep func(document.Template) bool) []document.Template {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]document.Template, 0)
	for _, t := range m.store {
		if keep(t) {
			out = append(out, cloneTemplate(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// sortByDateDesc orders templates newest effective date first, undated last.
func sortByDateDesc(ts []document.Template) {
	sort.SliceStable(ts, func(i, j int) bool {
		a, b := ts[i].EffectiveDate, ts[j].EffectiveDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

// MemoryDocumentRepo is an in-memory DocumentRepository.
type MemoryDocumentRepo struct {
	mu    sync.RWMutex
	store map[string]document.Document
}

func NewMemoryDocumentRepo() *MemoryDocumentRepo {
	return &MemoryDocumentRepo{store: make(map[string]document.Document)}
}

func (m *MemoryDocumentRepo) CreateDocument(ctx context.Context, typeRef, path string, artifact document.RenderedDocument) (document.Document, error) {
	d := document.Document{
		ID:               uuid.NewString(),
		Type:             typeRef,
		Path:             document.NormalizePath(path),
		RenderedDocument: artifact,
	}
	if artifact.Bytes != nil {
		d.Bytes = append([]byte(nil), artifact.Bytes...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[d.ID] = d
	return d, nil
}

func (m *MemoryDocumentRepo) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

// Len reports how many documents have been stored.
func (m *MemoryDocumentRepo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

// MemoryTypeCatalog is an in-memory TypeCatalog.
type MemoryTypeCatalog struct {
	mu    sync.RWMutex
	types map[string]document.DocumentType
}

func NewMemoryTypeCatalog(types ...document.DocumentType) *MemoryTypeCatalog {
	c := &MemoryTypeCatalog{types: make(map[string]document.DocumentType, len(types))}
	for _, t := range types {
		c.types[t.Reference] = t
	}
	return c
}

// Add registers or replaces a document type.
func (c *MemoryTypeCatalog) Add(t document.DocumentType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[t.Reference] = t
}

func (c *MemoryTypeCatalog) FindByReference(ctx context.Context, ref string) (*document.DocumentType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[ref]
	if !ok {
		return nil, document.ErrUnknownDocumentType
	}
	return &t, nil
}
