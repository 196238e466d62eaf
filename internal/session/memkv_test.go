package session

// memKV is an in-memory KV for tests.
type memKV struct {
	m map[string]string
}

func newMemKV() *memKV { return &memKV{m: make(map[string]string)} }

func (m *memKV) Get(key string) (string, bool, error) {
	v, ok := m.m[key]
	return v, ok, nil
}

func (m *memKV) Set(key, value string) error {
	m.m[key] = value
	return nil
}

func (m *memKV) Delete(key string) error {
	delete(m.m, key)
	return nil
}
