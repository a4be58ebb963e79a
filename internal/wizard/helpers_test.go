package wizard

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"onboard/internal/domain"
	"onboard/internal/draft"
	"onboard/pkg/cache"
	"onboard/pkg/errors"
	"onboard/pkg/logger"
)

// --- Fakes ---

// fakeRemote is an in-memory stand-in for the database and image host.
type fakeRemote struct {
	mu           sync.Mutex
	distributors map[string]domain.Distributor
	clients      map[string]domain.ClientRecord
	reminders    map[string][]domain.ReminderRecord
	seq          int
	uploads      []string
	commits      int

	commitErr     error
	commitStarted chan struct{}
	commitRelease chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		distributors: map[string]domain.Distributor{
			"dist-1": {ID: "dist-1", Name: "Priyanka Enterprises"},
			"dist-2": {ID: "dist-2", Name: "Other Distributor"},
		},
		clients:   map[string]domain.ClientRecord{},
		reminders: map[string][]domain.ReminderRecord{},
	}
}

func (f *fakeRemote) ResolveDistributor(ctx context.Context, id string) (*domain.Distributor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.distributors[id]
	if !ok {
		return nil, errors.ErrDistributorNotFound
	}
	return &d, nil
}

func (f *fakeRemote) CheckImage(file domain.ImageUpload) error {
	if file.Size() == 0 {
		return errors.ErrEmptyFile
	}
	return nil
}

func (f *fakeRemote) UploadImage(ctx context.Context, file domain.ImageUpload) (string, error) {
	if err := f.CheckImage(file); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, file.Filename)
	return "https://img.test/" + file.Filename, nil
}

func (f *fakeRemote) CommitClient(ctx context.Context, rec *domain.ClientRecord, reminders []domain.ReminderRecord, mode domain.SubmitMode) (string, error) {
	if f.commitStarted != nil {
		close(f.commitStarted)
	}
	if f.commitRelease != nil {
		<-f.commitRelease
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return "", f.commitErr
	}
	f.commits++

	id := rec.ClientID
	if mode == domain.SubmitModeCreate {
		f.seq++
		id = fmt.Sprintf("CLIENT-%06d", f.seq)
	} else if _, ok := f.clients[id]; !ok {
		return "", errors.ErrClientNotFound
	}

	stored := *rec
	stored.ClientID = id
	f.clients[id] = stored

	fresh := make([]domain.ReminderRecord, len(reminders))
	for i, r := range reminders {
		r.ClientID = id
		fresh[i] = r
	}
	f.reminders[id] = fresh
	return id, nil
}

func (f *fakeRemote) LoadClientForEdit(ctx context.Context, clientID string) (*domain.ClientRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.clients[clientID]
	if !ok {
		return nil, errors.ErrClientNotFound
	}
	return &rec, nil
}

func (f *fakeRemote) totalReminders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rs := range f.reminders {
		n += len(rs)
	}
	return n
}

// MockRemote is used where a test only needs canned answers.
type MockRemote struct {
	mock.Mock
}

func (m *MockRemote) ResolveDistributor(ctx context.Context, id string) (*domain.Distributor, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Distributor), args.Error(1)
}

func (m *MockRemote) CheckImage(file domain.ImageUpload) error {
	args := m.Called(file)
	return args.Error(0)
}

func (m *MockRemote) UploadImage(ctx context.Context, file domain.ImageUpload) (string, error) {
	args := m.Called(ctx, file)
	return args.String(0), args.Error(1)
}

func (m *MockRemote) CommitClient(ctx context.Context, rec *domain.ClientRecord, reminders []domain.ReminderRecord, mode domain.SubmitMode) (string, error) {
	args := m.Called(ctx, rec, reminders, mode)
	return args.String(0), args.Error(1)
}

func (m *MockRemote) LoadClientForEdit(ctx context.Context, clientID string) (*domain.ClientRecord, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClientRecord), args.Error(1)
}

// --- Setup ---

type harness struct {
	remote  *fakeRemote
	manager *Manager
	redis   *miniredis.Miniredis
	drafts  *draft.RedisStore
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c := cache.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	store := draft.NewRedisStore(c, "client_form_data", logger.NewNop())
	remote := newFakeRemote()
	return &harness{
		remote:  remote,
		redis:   mr,
		drafts:  store,
		manager: NewManager(remote, store, logger.NewNop(), Options{Policy: policy}),
	}
}

func (h *harness) start(t *testing.T) *Controller {
	t.Helper()
	return h.startAs(t, nil)
}

// startAs opens a create session for dist-1 on behalf of a signed-in user.
func (h *harness) startAs(t *testing.T, userID *uuid.UUID) *Controller {
	t.Helper()
	c, err := h.manager.Start(context.Background(), StartRequest{DistributorID: "dist-1", UserID: userID})
	require.NoError(t, err)
	return c
}

func futureExpiry() string {
	return fmt.Sprintf("12/%02d", (time.Now().Year()+2)%100)
}

func set(t *testing.T, c *Controller, u FieldUpdate) {
	t.Helper()
	require.NoError(t, c.SetField(context.Background(), u))
}

func fillPersonal(t *testing.T, c *Controller) {
	set(t, c, SetName{Value: gofakeit.Name()})
	set(t, c, SetMobile{Value: "98765 43210"})
	set(t, c, SetEmail{Value: gofakeit.Email()})
}

func uploadDocuments(t *testing.T, c *Controller) {
	ctx := context.Background()
	for _, slot := range []ImageSlot{SlotAadhaarFront, SlotAadhaarBack, SlotPAN} {
		_, err := c.UploadImage(ctx, slot, imageFile(string(slot)+".jpg"))
		require.NoError(t, err)
	}
}

func fillBank(t *testing.T, c *Controller) {
	set(t, c, AddBankAccount{})
	set(t, c, SetBankField{Index: 0, Field: BankAccountNumber, Value: "001234567890"})
	set(t, c, SetBankField{Index: 0, Field: BankAccountHolderName, Value: gofakeit.Name()})
	set(t, c, SetBankField{Index: 0, Field: BankMobile, Value: "9123456789"})
	set(t, c, SetBankField{Index: 0, Field: BankName, Value: "State Bank of India"})
	set(t, c, SetBankField{Index: 0, Field: BankIFSCCode, Value: "sbin0001234"})
	set(t, c, SetBankField{Index: 0, Field: BankBranch, Value: "MG Road"})
}

func fillCard(t *testing.T, c *Controller, i int, number string) {
	set(t, c, SetCardField{Index: i, Field: CardNumber, Value: number})
	set(t, c, SetCardField{Index: i, Field: CardCVV, Value: "123"})
	set(t, c, SetCardField{Index: i, Field: CardExpiryDate, Value: futureExpiry()})
	set(t, c, SetCardField{Index: i, Field: CardLimit, Value: "50000"})
	set(t, c, SetCardField{Index: i, Field: CardBankName, Value: "HDFC Bank"})
	set(t, c, SetCardField{Index: i, Field: CardHolderName, Value: gofakeit.Name()})
	set(t, c, SetCardField{Index: i, Field: CardHolderMobile, Value: "9876543210"})
	set(t, c, SetCardField{Index: i, Field: CardBillGenerationDate, Value: "10"})
	set(t, c, SetCardField{Index: i, Field: CardDueDate, Value: "25"})
}

func advance(t *testing.T, c *Controller) Snapshot {
	t.Helper()
	snap, err := c.Advance(context.Background())
	require.NoError(t, err)
	return snap
}

// advanceToReview moves a session with an already complete draft forward to
// the review step.
func advanceToReview(t *testing.T, c *Controller) {
	t.Helper()
	for c.Snapshot().Step < StepReview {
		advance(t, c)
	}
}

// completeUpToReview walks a session through every step with valid data and
// stops on the review step.
func completeUpToReview(t *testing.T, c *Controller, cards int) {
	t.Helper()
	fillPersonal(t, c)
	advance(t, c)
	uploadDocuments(t, c)
	advance(t, c)
	fillBank(t, c)
	advance(t, c)
	fillCard(t, c, 0, "4111 1111 1111 1111")
	for i := 1; i < cards; i++ {
		set(t, c, AddCard{})
		fillCard(t, c, i, "5105 1051 0510 5100")
	}
	advance(t, c)
	require.Equal(t, StepReview, c.Snapshot().Step)
}

func imageFile(name string) domain.ImageUpload {
	return domain.ImageUpload{Filename: name, ContentType: "image/jpeg", Data: []byte("\xff\xd8\xff\xe0 jpeg")}
}
