package deposit

import "sync"

// Manager keeps one workflow per chat.
type Manager struct {
	deps Deps

	mu        sync.Mutex
	workflows map[int64]*Workflow
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:      deps,
		workflows: make(map[int64]*Workflow),
	}
}

// For returns the chat's workflow, starting a fresh one when there is none.
func (m *Manager) For(chatID int64, sessions Sessions) *Workflow {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workflows[chatID]
	if !ok {
		w = New(m.deps, sessions)
		m.workflows[chatID] = w
	}
	return w
}

// Active reports whether the chat has a workflow in progress.
func (m *Manager) Active(chatID int64) (*Workflow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[chatID]
	return w, ok
}

func (m *Manager) Drop(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workflows, chatID)
}

func (m *Manager) Addresses() map[Method]string {
	return m.deps.Addresses
}
