package toposort

import "sync"

// SymbolTable interns strings to dense integer IDs. The registry uses it as
// its URL arena: loads and edges refer to modules by ID.
type SymbolTable struct {
	strToID map[string]int
	idToStr []string
	lock    sync.RWMutex
}

// NewSymbolTable creates an empty SymbolTable.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{strToID: make(map[string]int)}
}

// Intern returns the ID of name, assigning the next free ID on first use.
func (table *SymbolTable) Intern(name string) int {
	table.lock.RLock()
	id, exists := table.strToID[name]
	table.lock.RUnlock()

	if exists {
		return id
	}

	table.lock.Lock()
	defer table.lock.Unlock()

	if id, exists = table.strToID[name]; exists {
		return id
	}

	id = len(table.idToStr)
	table.idToStr = append(table.idToStr, name)
	table.strToID[name] = id

	return id
}

// Lookup returns the ID of name without interning it.
func (table *SymbolTable) Lookup(name string) (int, bool) {
	table.lock.RLock()
	defer table.lock.RUnlock()

	id, ok := table.strToID[name]

	return id, ok
}

// Resolve returns the string for id, or "" for an unknown ID.
func (table *SymbolTable) Resolve(id int) string {
	table.lock.RLock()
	defer table.lock.RUnlock()

	if id < 0 || id >= len(table.idToStr) {
		return ""
	}

	return table.idToStr[id]
}

// Len returns the number of interned strings.
func (table *SymbolTable) Len() int {
	table.lock.RLock()
	defer table.lock.RUnlock()

	return len(table.idToStr)
}
