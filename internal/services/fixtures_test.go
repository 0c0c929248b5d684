package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/martincass/UCAMtracker/internal/auth"
	"github.com/martincass/UCAMtracker/internal/db"
	"github.com/martincass/UCAMtracker/internal/i18n"
	"github.com/martincass/UCAMtracker/internal/mailer"
	"github.com/martincass/UCAMtracker/internal/models"
	"github.com/martincass/UCAMtracker/internal/realtime"
	"github.com/martincass/UCAMtracker/internal/storage"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testSecret = "test-secret-0123456789abcdef"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func pngBytes(n int) []byte {
	b := make([]byte, n)
	copy(b, pngHeader)
	return b
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *fakeMailer) Enabled() bool { return m.err == nil }

func (m *fakeMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) last() mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return mailer.Message{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  int
	puts    int
	pingErr error
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string][]byte{}}
}

func (b *memBucket) Put(ctx context.Context, path string, r io.Reader) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.failOn > 0 && b.puts == b.failOn {
		return 0, errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	b.objects[path] = data
	return int64(len(data)), nil
}

func (b *memBucket) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBucket) Delete(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, path)
	return nil
}

func (b *memBucket) Ping(ctx context.Context) error { return b.pingErr }

func (b *memBucket) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *fakePublisher) Publish(ev realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) all() []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.Event(nil), p.events...)
}

type fixture struct {
	db     *gorm.DB
	tokens *auth.TokenIssuer
	tr     *i18n.Translator
	mail   *fakeMailer
	bucket *memBucket
	pub    *fakePublisher

	auth        *AuthService
	users       *UserAdminService
	clients     *ClientService
	requests    *AccessRequestService
	submissions *SubmissionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		db:     conn,
		tokens: auth.NewTokenIssuer(testSecret, time.Hour, time.Hour),
		tr:     i18n.MustNew("en"),
		mail:   &fakeMailer{},
		bucket: newMemBucket(),
		pub:    &fakePublisher{},
	}
	f.auth = NewAuthService(conn, f.tokens, f.mail, f.tr, AuthOptions{
		Policy:     auth.BasicPolicy,
		BcryptCost: bcrypt.MinCost,
		SiteURL:    "https://portal.example.com",
	})
	f.users = NewUserAdminService(conn, f.mail, f.tr, bcrypt.MinCost, "https://portal.example.com")
	f.clients = NewClientService(conn)
	f.requests = NewAccessRequestService(conn)
	f.submissions = NewSubmissionService(conn, f.bucket, f.pub, SubmissionOptions{Photos: PhotosExactTwo})
	return f
}

// account inserts a confirmed user with an allowlist entry and returns it as a principal.
func (f *fixture) account(t *testing.T, email string, role models.UserRole, clientID, password string) *Principal {
	t.Helper()
	hash, err := auth.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now()
	user := &models.User{
		Email:            email,
		PasswordHash:     hash,
		Role:             role,
		ClientID:         clientID,
		ClientName:       strings.ToUpper(clientID) + " Corp",
		EmailConfirmedAt: &now,
	}
	require.NoError(t, f.db.Create(user).Error)
	entry := &models.AllowlistClient{
		Email:      user.Email,
		ClientID:   clientID,
		ClientName: user.ClientName,
		Active:     true,
	}
	require.NoError(t, f.db.Create(entry).Error)
	return &Principal{User: user, Allowlist: entry}
}

func (f *fixture) admin(t *testing.T) *Principal {
	return f.account(t, "admin@example.com", models.RoleAdmin, "ADMIN", "Admin123!")
}

func (f *fixture) client(t *testing.T, email, clientID string) *Principal {
	return f.account(t, email, models.RoleClient, clientID, "Client123!")
}

func twoPhotos() []PhotoUpload {
	return []PhotoUpload{
		{Filename: "entry.png", Size: 64, Reader: bytes.NewReader(pngBytes(64))},
		{Filename: "scale.png", Size: 64, Reader: bytes.NewReader(pngBytes(64))},
	}
}
