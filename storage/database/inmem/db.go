package inmemdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/docfee"
	"github.com/trezcool/ecolage/core/payment"
	"github.com/trezcool/ecolage/core/school"
	"github.com/trezcool/ecolage/core/tranche"
	"github.com/trezcool/ecolage/core/user"
)

type (
	// DB is an in-memory store used by tests and local demos.
	// Transactions are serialized and rolled back by restoring a snapshot of the tables.
	DB struct {
		txMu sync.Mutex
		mu   sync.RWMutex
		t    *tables
	}

	tables struct {
		users         map[string]user.User
		classes       map[string]school.Class
		series        map[string]school.ClassSeries
		students      map[string]school.Student
		tranches      map[string]tranche.Tranche
		classAmounts  map[string]tranche.ClassAmount // {classID/trancheID: amount}
		payments      map[string]payment.Payment
		scholarships  map[string]payment.Scholarship
		discountRules map[string]payment.DiscountRule
		contributions map[string]payment.PhysicalContribution // {studentID/trancheID: contribution}
		fees          map[string]docfee.Fee
		counters      map[string]int64 // {kind/year: last}
	}
)

var (
	_ core.TxRunner       = (*DB)(nil) // interface compliance check
	_ core.ReceiptCounter = (*DB)(nil)
)

func Open() *DB {
	return &DB{t: newTables()}
}

func newTables() *tables {
	return &tables{
		users:         make(map[string]user.User),
		classes:       make(map[string]school.Class),
		series:        make(map[string]school.ClassSeries),
		students:      make(map[string]school.Student),
		tranches:      make(map[string]tranche.Tranche),
		classAmounts:  make(map[string]tranche.ClassAmount),
		payments:      make(map[string]payment.Payment),
		scholarships:  make(map[string]payment.Scholarship),
		discountRules: make(map[string]payment.DiscountRule),
		contributions: make(map[string]payment.PhysicalContribution),
		fees:          make(map[string]docfee.Fee),
		counters:      make(map[string]int64),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.users {
		v.Roles = append([]string(nil), v.Roles...)
		c.users[k] = v
	}
	for k, v := range t.classes {
		c.classes[k] = v
	}
	for k, v := range t.series {
		c.series[k] = v
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	for k, v := range t.tranches {
		c.tranches[k] = v
	}
	for k, v := range t.classAmounts {
		c.classAmounts[k] = v
	}
	for k, v := range t.payments {
		v.Details = append([]payment.Detail(nil), v.Details...)
		c.payments[k] = v
	}
	for k, v := range t.scholarships {
		c.scholarships[k] = v
	}
	for k, v := range t.discountRules {
		c.discountRules[k] = v
	}
	for k, v := range t.contributions {
		c.contributions[k] = v
	}
	for k, v := range t.fees {
		c.fees[k] = v
	}
	for k, v := range t.counters {
		c.counters[k] = v
	}
	return c
}

// Flush empties every table.
func (db *DB) Flush() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.t = newTables()
}

// RunInTx runs fn while holding the store's transaction lock; the tables are restored when fn fails.
// fn receives a nil executor, which the in-memory repositories ignore.
func (db *DB) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.RLock()
	snapshot := db.t.clone()
	db.mu.RUnlock()

	if err := fn(nil); err != nil {
		db.mu.Lock()
		db.t = snapshot
		db.mu.Unlock()
		return err
	}
	return nil
}

func (db *DB) Next(_ context.Context, kind string, year int, _ ...core.DBExecutor) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := fmt.Sprintf("%s/%d", kind, year)
	db.t.counters[key]++
	return db.t.counters[key], nil
}

func pairKey(a, b string) string { return a + "/" + b }
