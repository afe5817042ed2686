package provision

import (
	"context"
	"fmt"
	"sync"

	"github.com/acorn-pups/dbinfra/pkg/schema"
)

// MemoryTableService is an in-process TableService for tests and dry runs. Applying an existing
// name updates it in place.
type MemoryTableService struct {
	Region  string
	Account string

	mu      sync.Mutex
	tables  map[string]TableDeclaration
	order   []string
	failOn  map[string]error
	applies int
}

var (
	_ TableService = (*MemoryTableService)(nil)
	_ Rollbacker   = (*MemoryTableService)(nil)
)

func NewMemoryTableService() *MemoryTableService {
	return &MemoryTableService{
		Region:  "us-east-1",
		Account: "000000000000",
		tables:  map[string]TableDeclaration{},
		failOn:  map[string]error{},
	}
}

// FailOn makes the next apply of entity fail with err.
func (s *MemoryTableService) FailOn(entity string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[entity] = err
}

func (s *MemoryTableService) ApplyTable(ctx context.Context, decl TableDeclaration) (Applied, error) {
	if err := ctx.Err(); err != nil {
		return Applied{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applies++

	if err, ok := s.failOn[decl.Entity]; ok {
		delete(s.failOn, decl.Entity)
		return Applied{}, err
	}
	if len(decl.Indexes) > schema.MaxIndexesPerTable {
		return Applied{}, fmt.Errorf("LimitExceededException: table %s declares %d indexes", decl.Name, len(decl.Indexes))
	}

	_, exists := s.tables[decl.Name]
	if !exists {
		s.order = append(s.order, decl.Name)
	}
	s.tables[decl.Name] = decl

	return Applied{
		Handle: TableHandle{
			Entity:      decl.Entity,
			Resource:    decl.Resource,
			DisplayName: decl.DisplayName,
			Name:        decl.Name,
			Identifier:  fmt.Sprintf("arn:aws:dynamodb:%s:%s:table/%s", s.Region, s.Account, decl.Name),
		},
		Created: !exists,
	}, nil
}

func (s *MemoryTableService) RollbackTable(_ context.Context, h TableHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[h.Name]; !ok {
		return fmt.Errorf("ResourceNotFoundException: table %s", h.Name)
	}
	delete(s.tables, h.Name)
	for i, n := range s.order {
		if n == h.Name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Table returns the stored declaration for a physical table name.
func (s *MemoryTableService) Table(name string) (TableDeclaration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.tables[name]
	return d, ok
}

// Names returns the stored table names in creation order.
func (s *MemoryTableService) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Applies returns how many apply calls the service has received.
func (s *MemoryTableService) Applies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applies
}
