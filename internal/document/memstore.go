package document

import (
	"context"
	"crypto/sha1"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/stackl-io/stackl-core/internal/catalog"
	"github.com/stackl-io/stackl-core/internal/stackerrors"
)

// MemStore is an in-memory Store implementation, a mutex-guarded map keyed
// by (type,name). Used for tests and for standalone/demo deployments of
// cmd/controlplane.
type MemStore struct {
	mu        sync.Mutex
	documents map[string]Document
	instances map[string]catalog.StackInstance
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		documents: make(map[string]Document),
		instances: make(map[string]catalog.StackInstance),
	}
}

func key(docType catalog.DocType, name string) string {
	return string(docType) + "/" + name
}

func (m *MemStore) Get(ctx context.Context, docType catalog.DocType, name string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[key(docType, name)]
	if !ok {
		return Document{}, stackerrors.NotFound(string(docType), name)
	}
	return doc, nil
}

func (m *MemStore) Write(ctx context.Context, docType catalog.DocType, name string, body []byte, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := sha1.Sum(body)
	m.documents[key(docType, name)] = Document{
		Type:        docType,
		Name:        name,
		Body:        append([]byte(nil), body...),
		Revision:    fmt.Sprintf("%x", sum),
		Description: description,
	}
	return nil
}

func (m *MemStore) List(ctx context.Context, docType catalog.DocType) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for _, doc := range m.documents {
		if doc.Type == docType {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) GetStackInstance(ctx context.Context, name string) (catalog.StackInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[name]
	if !ok {
		return catalog.StackInstance{}, stackerrors.NotFound(string(catalog.DocTypeStackInstance), name)
	}
	return inst.Clone(), nil
}

func (m *MemStore) ListStackInstances(ctx context.Context) ([]catalog.StackInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]catalog.StackInstance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) WriteStackInstance(ctx context.Context, instance *catalog.StackInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.instances[instance.Name]
	if ok && instance.Version != 0 && instance.Version != existing.Version {
		return stackerrors.Conflict(instance.Name)
	}

	if ok {
		instance.Version = existing.Version + 1
	} else {
		instance.Version = 1
	}
	m.instances[instance.Name] = instance.Clone()
	return nil
}

func (m *MemStore) DeleteStackInstance(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, name)
	return nil
}

func (m *MemStore) Close() error { return nil }

// marshalOrPanic is used only by test helpers seeding the store with
// typed documents; production callers go through document.Write with
// already-marshaled bytes.
func marshalOrPanic(v any) []byte {
	b, err := yaml.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
