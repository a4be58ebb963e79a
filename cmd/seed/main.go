// Seeding tool for local development: creates the distributors that form links
// point at, plus an optional dashboard user.
// Usage (env overrides):
//
//	SEED_DISTRIBUTOR_ID=dist-demo SEED_DISTRIBUTOR_NAME="Demo Distributor"
//	SEED_FAKE_DISTRIBUTORS=5
//	SEED_EMAIL=owner@example.com SEED_PASSWORD=Password123
//
// Reads DATABASE_URL via onboard/pkg/config.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"onboard/internal/domain"
	"onboard/internal/repository/postgres"
	"onboard/pkg/config"
	"onboard/pkg/errors"
	"onboard/pkg/logger"
)

func main() {
	log := logger.New("onboard-seed")

	cfg := config.Load()
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL environment variable is required", nil)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	ctx := context.Background()
	distributors := postgres.NewDistributorRepository(db)

	seeded := []domain.Distributor{{
		ID:        getenv("SEED_DISTRIBUTOR_ID", "dist-demo"),
		Name:      getenv("SEED_DISTRIBUTOR_NAME", "Demo Distributor"),
		CreatedAt: time.Now().UTC(),
	}}
	n, _ := strconv.Atoi(getenv("SEED_FAKE_DISTRIBUTORS", "0"))
	faker := gofakeit.New(int64(n))
	for i := 0; i < n; i++ {
		seeded = append(seeded, domain.Distributor{
			ID:        fmt.Sprintf("dist-%s", strings.ToLower(faker.LetterN(6))),
			Name:      faker.Company(),
			CreatedAt: time.Now().UTC(),
		})
	}

	for i := range seeded {
		if err := distributors.Upsert(ctx, &seeded[i]); err != nil {
			log.Fatal("Failed to seed distributor", map[string]interface{}{"id": seeded[i].ID, "error": err.Error()})
		}
		fmt.Printf("distributor %s (%s): /forms/%s\n", seeded[i].ID, seeded[i].Name, seeded[i].ID)
	}

	if email := os.Getenv("SEED_EMAIL"); email != "" {
		ensureUser(ctx, postgres.NewUserRepository(db), log, email, getenv("SEED_PASSWORD", "Password123"))
	}

	fmt.Println("OK: seed complete")
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func ensureUser(ctx context.Context, repo *postgres.UserRepository, log logger.Logger, email, password string) {
	if _, err := repo.FindByEmail(ctx, email); err == nil {
		log.Info("Seed user already exists", map[string]interface{}{"email": email})
		return
	} else if !errors.Is(err, errors.ErrUserNotFound) {
		log.Fatal("FindByEmail failed", map[string]interface{}{"error": err.Error()})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("bcrypt failed", map[string]interface{}{"error": err.Error()})
	}
	h := string(hash)
	user := &domain.User{
		ID:           uuid.New(),
		Name:         strings.Split(email, "@")[0],
		Email:        email,
		PasswordHash: &h,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(ctx, user); err != nil {
		log.Fatal("Create user failed", map[string]interface{}{"error": err.Error()})
	}
	log.Info("Seed user created", map[string]interface{}{"email": email, "id": user.ID.String()})
}
