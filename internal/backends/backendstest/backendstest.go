// Package backendstest provides stand-ins for remote backends in tests of
// code built on the adapters.
package backendstest

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/zawnaing-2024/vmaster/pkg/outline"
	"github.com/zawnaing-2024/vmaster/pkg/radius"
)

// RadiusSchema is the FreeRADIUS user schema subset the store touches.
const RadiusSchema = `
CREATE TABLE radcheck (id INTEGER PRIMARY KEY AUTOINCREMENT, username TEXT NOT NULL, attribute TEXT NOT NULL, op TEXT NOT NULL, value TEXT NOT NULL);
CREATE TABLE radreply (id INTEGER PRIMARY KEY AUTOINCREMENT, username TEXT NOT NULL, attribute TEXT NOT NULL, op TEXT NOT NULL, value TEXT NOT NULL);
CREATE TABLE radusergroup (id INTEGER PRIMARY KEY AUTOINCREMENT, username TEXT NOT NULL, groupname TEXT NOT NULL, priority INTEGER NOT NULL DEFAULT 1);
`

// RadiusStore returns a store over a private in-memory database.
func RadiusStore(t testing.TB) *radius.Store {
	t.Helper()

	conn, err := sqlx.Open("sqlite", "file::memory:")
	if err != nil {
		t.Fatalf("open radius sqlite: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	for _, stmt := range strings.Split(RadiusSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("apply radius schema: %v", err)
		}
	}
	return radius.New(conn, time.Second)
}

// Outline is an in-memory management API.
type Outline struct {
	mu        sync.Mutex
	nextID    int
	keys      map[string]outline.AccessKey
	CreateErr error
	DeleteErr error
	ServerErr error
}

func NewOutline() *Outline {
	return &Outline{keys: map[string]outline.AccessKey{}}
}

func (o *Outline) GetServer(context.Context) (*outline.ServerInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ServerErr != nil {
		return nil, o.ServerErr
	}
	return &outline.ServerInfo{Name: "fake"}, nil
}

func (o *Outline) CreateAccessKey(_ context.Context, name string) (*outline.AccessKey, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.CreateErr != nil {
		return nil, o.CreateErr
	}
	o.nextID++
	id := strconv.Itoa(o.nextID)
	key := outline.AccessKey{ID: id, Name: name, AccessURL: "ss://fake-" + id}
	o.keys[id] = key
	return &key, nil
}

func (o *Outline) DeleteAccessKey(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.DeleteErr != nil {
		return o.DeleteErr
	}
	if _, ok := o.keys[id]; !ok {
		return outline.ErrKeyNotFound
	}
	delete(o.keys, id)
	return nil
}

func (o *Outline) RenameAccessKey(_ context.Context, id, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	key, ok := o.keys[id]
	if !ok {
		return outline.ErrKeyNotFound
	}
	key.Name = name
	o.keys[id] = key
	return nil
}

// Has reports whether the key id exists.
func (o *Outline) Has(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.keys[id]
	return ok
}

func (o *Outline) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.keys)
}

func (o *Outline) SetDeleteErr(err error) {
	o.mu.Lock()
	o.DeleteErr = err
	o.mu.Unlock()
}
