package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docportal/internal/access"
	"docportal/internal/model"
	"docportal/internal/repository/memory"
	"docportal/internal/storage"
)

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// harness wires DocumentService to the in-memory store and blob storage.
type harness struct {
	store *memory.Store
	blobs *storage.MemoryStorage
	clock *testClock
	svc   DocumentService
	admin access.Caller
	user  access.Caller
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store: memory.New(),
		blobs: storage.NewMemory(),
		clock: newTestClock(),
	}
	opts = append([]Option{WithClock(h.clock.Now)}, opts...)
	h.svc = NewDocumentService(h.store, h.blobs, access.NewEngine(h.store.Grants()), opts...)
	h.admin = h.addUser(t, "admin@example.com", model.RoleAdmin)
	h.user = h.addUser(t, "user@example.com", model.RoleUser)
	return h
}

func (h *harness) addUser(t *testing.T, email string, role model.Role) access.Caller {
	t.Helper()
	u, err := h.store.Users().Create(context.Background(), &model.User{Email: email, PasswordHash: "x", Role: role})
	require.NoError(t, err)
	return access.Caller{UserID: u.ID, Role: u.Role}
}

// userWithID creates filler users until one with the wanted id exists.
func (h *harness) userWithID(t *testing.T, id int64) access.Caller {
	t.Helper()
	for i := 0; ; i++ {
		c := h.addUser(t, fmt.Sprintf("filler%d@example.com", i), model.RoleUser)
		if c.UserID == id {
			return c
		}
		require.Less(t, c.UserID, id)
	}
}

func (h *harness) upload(t *testing.T, title, name, body string) *model.Document {
	t.Helper()
	doc, err := h.svc.Create(context.Background(), h.admin, CreateDocumentInput{
		Title:        title,
		OriginalName: name,
		ContentType:  "application/pdf",
		Size:         int64(len(body)),
		Body:         strings.NewReader(body),
	})
	require.NoError(t, err)
	return doc
}
