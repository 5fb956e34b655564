package index

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	"github.com/yoniassia/memclawz/internal/errors"
)

// AllNamespaces is the reserved name for fan-out queries across every
// namespace. It can never be created as a real namespace.
const AllNamespaces = "all"

// namespacePattern restricts namespace names to a safe identifier set.
var namespacePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Tenant binds an API key to its home namespace.
type Tenant struct {
	Namespace string
	Key       string
}

// Manager owns the namespace table. Namespaces are created lazily on first
// write and never observe each other's documents except through shared
// visibility in fan-out queries.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.RWMutex
	namespaces map[string]*NamespaceIndex
	keys       map[string]string // API key -> home namespace
	closed     bool
}

// NewManager creates a manager with the given tenant credentials.
func NewManager(cfg Config, tenants []Tenant, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	keys := make(map[string]string, len(tenants))
	for _, t := range tenants {
		if err := ValidateNamespace(t.Namespace); err != nil {
			return nil, err
		}
		if t.Key == "" {
			return nil, errors.ValidationError(
				fmt.Sprintf("tenant %s has an empty API key", t.Namespace), nil)
		}
		if existing, dup := keys[t.Key]; dup {
			return nil, errors.ValidationError(
				fmt.Sprintf("API key is shared between namespaces %s and %s", existing, t.Namespace), nil)
		}
		keys[t.Key] = t.Namespace
	}

	return &Manager{
		cfg:        cfg,
		logger:     logger,
		namespaces: make(map[string]*NamespaceIndex),
		keys:       keys,
	}, nil
}

// ValidateNamespace rejects empty, reserved, or malformed namespace names.
func ValidateNamespace(name string) error {
	if name == "" {
		return errors.ValidationError("namespace is required", nil)
	}
	if name == AllNamespaces {
		return errors.ValidationError(
			fmt.Sprintf("namespace %q is reserved for fan-out queries", AllNamespaces), nil)
	}
	if !namespacePattern.MatchString(name) {
		return errors.ValidationError(
			fmt.Sprintf("namespace %q contains invalid characters", name), nil)
	}
	return nil
}

// Authenticate maps an API key to its home namespace.
func (m *Manager) Authenticate(key string) (string, error) {
	if key == "" {
		return "", errors.Unauthorized("missing API key")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ns, ok := m.keys[key]
	if !ok {
		return "", errors.Unauthorized("unknown API key")
	}
	return ns, nil
}

// AuthorizeWrite checks that the authenticated namespace may write to the
// target namespace. Writes never cross namespaces.
func (m *Manager) AuthorizeWrite(authNamespace, target string) error {
	if target != authNamespace {
		return errors.Forbidden(
			fmt.Sprintf("namespace %s cannot write to namespace %s", authNamespace, target))
	}
	return nil
}

// Namespace returns the index for a namespace, creating it if needed.
func (m *Manager) Namespace(name string) (*NamespaceIndex, error) {
	if err := ValidateNamespace(name); err != nil {
		return nil, err
	}

	m.mu.RLock()
	ns, ok := m.namespaces[name]
	closed := m.closed
	m.mu.RUnlock()
	if ok {
		return ns, nil
	}
	if closed {
		return nil, errors.New(errors.ErrCodeInternal, "manager is closed", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ns, ok := m.namespaces[name]; ok {
		return ns, nil
	}

	ns, err := NewNamespaceIndex(name, m.cfg, m.logger)
	if err != nil {
		return nil, err
	}
	m.namespaces[name] = ns
	m.logger.Info("namespace_created", slog.String("namespace", name))
	return ns, nil
}

// Existing returns the index for a namespace without creating it.
func (m *Manager) Existing(name string) (*NamespaceIndex, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, ok := m.namespaces[name]
	return ns, ok
}

// All returns every namespace index, sorted by name for deterministic
// iteration.
func (m *Manager) All() []*NamespaceIndex {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*NamespaceIndex, 0, len(m.namespaces))
	for _, ns := range m.namespaces {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Namespace() < out[j].Namespace()
	})
	return out
}

// StatsAll returns a stats snapshot per namespace, sorted by name.
func (m *Manager) StatsAll() []Stats {
	all := m.All()
	stats := make([]Stats, len(all))
	for i, ns := range all {
		stats[i] = ns.Stats()
	}
	return stats
}

// Close closes every namespace index.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	for _, ns := range m.namespaces {
		if err := ns.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
