package mirror

import (
	"context"
	"errors"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type executedQuery struct {
	Query  string
	Params map[string]any
}

// MockDriver is a mock implementation of driver.GraphDriver
type MockDriver struct {
	mu       sync.Mutex
	Executed []executedQuery
	Fail     bool
	Indexed  bool
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]any) (neo4j.EagerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Executed = append(m.Executed, executedQuery{Query: query, Params: params})
	if m.Fail {
		return neo4j.EagerResult{}, errors.New("connection refused")
	}
	return neo4j.EagerResult{}, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Indexed = true
	return nil
}

func (m *MockDriver) Close(ctx context.Context) error {
	return nil
}

func (m *MockDriver) queries() []executedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]executedQuery(nil), m.Executed...)
}

type MockStats struct {
	mu       sync.Mutex
	ok, fail int
}

func (m *MockStats) MirrorWrite(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.fail++
	} else {
		m.ok++
	}
}

func (m *MockStats) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ok, m.fail
}
