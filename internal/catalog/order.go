package catalog

import (
	"database/sql"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// positionScope names one ordering scope: all rows of a table sharing a
// parent id in the scope column.
type positionScope struct {
	table  string
	column string
	id     uint
}

// positionAllocator hands out the next position within a scope. The
// read-max-then-write is not atomic at the store level, so the allocator
// serializes it with one mutex per scope; callers must hold the scope lock
// from the max query until the row insert commits.
type positionAllocator struct {
	mu    sync.Mutex
	locks map[positionScope]*sync.Mutex
}

func newPositionAllocator() *positionAllocator {
	return &positionAllocator{locks: make(map[positionScope]*sync.Mutex)}
}

// lock acquires the scope lock and returns its release function.
func (a *positionAllocator) lock(scope positionScope) func() {
	a.mu.Lock()
	scopeLock, ok := a.locks[scope]
	if !ok {
		scopeLock = &sync.Mutex{}
		a.locks[scope] = scopeLock
	}
	a.mu.Unlock()

	scopeLock.Lock()
	return scopeLock.Unlock
}

// nextPosition computes the position for a new row in the scope: 0 for an
// empty scope, otherwise the current maximum plus one.
func nextPosition(db *gorm.DB, model interface{}, scope positionScope) (int, error) {
	var current sql.NullInt64
	err := db.Model(model).
		Where(fmt.Sprintf("%s = ?", scope.column), scope.id).
		Select("MAX(position)").
		Scan(&current).Error
	if err != nil {
		return 0, err
	}
	if !current.Valid {
		return 0, nil
	}
	return int(current.Int64) + 1, nil
}
