package draft

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboard/internal/domain"
	"onboard/pkg/cache"
	"onboard/pkg/logger"
)

func newStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c := cache.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return NewRedisStore(c, "client_form_data", logger.NewNop()), mr
}

func sampleDraft() *domain.FormDraft {
	d := domain.NewFormDraft()
	d.Name = gofakeit.Name()
	d.Mobile = "9876543210"
	d.Email = gofakeit.Email()
	d.AadhaarNumber = "1234-5678-9012"
	d.AadhaarImages = d.AadhaarImages.With(domain.ImageSideFront, "https://img.example/front.jpg")
	d.CreditCards[0] = domain.CreditCardEntry{
		CardNumber: "4111-1111-1111-1111",
		CVV:        "123",
		ExpiryDate: "12/30",
		CardLimit:  decimal.NewFromInt(75000),
		BankName:   "HDFC Bank",
		CardType:   domain.CardNetworkVisa,
		DueDate:    5,
	}
	d.BankAccounts = append(d.BankAccounts, domain.BankAccountEntry{
		AccountNumber: "001234567890",
		BankName:      "SBI",
		IFSCCode:      "SBIN0001234",
	})
	return d
}

func TestRedisStore_SaveLoadRoundTrip(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	in := sampleDraft()

	require.NoError(t, s.Save(ctx, "sess-1", in))
	assert.True(t, mr.Exists("client_form_data:sess-1"))
	assert.Zero(t, mr.TTL("client_form_data:sess-1"))

	out, ok := s.Load(ctx, "sess-1")
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestRedisStore_FreshDraftRoundTrip(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	in := domain.NewFormDraft()
	in.Name = "Asha Rao"
	require.NoError(t, s.Save(ctx, "sess-fresh", in))

	out, ok := s.Load(ctx, "sess-fresh")
	require.True(t, ok)
	assert.Equal(t, in, out)

	// A card whose limit was never set decodes to the same draft too.
	in.CreditCards = append(in.CreditCards, domain.CreditCardEntry{CardType: domain.CardNetworkUnknown})
	require.NoError(t, s.Save(ctx, "sess-fresh", in))
	out, ok = s.Load(ctx, "sess-fresh")
	require.True(t, ok)
	in.Normalize()
	assert.Equal(t, in, out)
}

func TestRedisStore_ClearThenLoad(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "sess-2", sampleDraft()))
	require.NoError(t, s.Clear(ctx, "sess-2"))

	d, ok := s.Load(ctx, "sess-2")
	assert.False(t, ok)
	assert.Nil(t, d)
}

func TestRedisStore_CorruptDraftIsIgnored(t *testing.T) {
	s, mr := newStore(t)
	require.NoError(t, mr.Set("client_form_data:sess-3", "{not json"))

	_, ok := s.Load(context.Background(), "sess-3")
	assert.False(t, ok)
}

func TestRedisStore_LoadFillsMissingArrays(t *testing.T) {
	s, mr := newStore(t)
	require.NoError(t, mr.Set("client_form_data:sess-4", `{"name":"Asha","mobile":"9876543210"}`))

	d, ok := s.Load(context.Background(), "sess-4")
	require.True(t, ok)
	assert.Equal(t, "Asha", d.Name)
	assert.NotNil(t, d.CreditCards)
	assert.NotNil(t, d.BankAccounts)
	assert.NotNil(t, d.AadhaarImages)
}

func TestRedisStore_KeysAreScopedPerSession(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "a", sampleDraft()))
	_, ok := s.Load(ctx, "b")
	assert.False(t, ok)
}
