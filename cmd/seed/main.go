package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"finkargo-billing/internal/config"
	"finkargo-billing/internal/domain/model"
	"finkargo-billing/internal/domain/ports/repository"
	"finkargo-billing/internal/infra/api"
	pg "finkargo-billing/internal/infra/db/postgres"
	"finkargo-billing/internal/infra/logging"
)

// Seeds demo companies and prints a session token for each, so the checkout
// endpoints can be exercised with curl against a local stack.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	email := flag.String("email", "billing@example.com", "email put in the minted session tokens")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrations")
	}

	companies := pg.NewCompanyRepo(pool)
	sessions := api.NewSessionManager(cfg.Auth)
	now := time.Now().UTC()

	seed := []model.Company{
		{ID: "company-co-demo", Name: "Importadora Andina SAS", Country: "CO"},
		{ID: "company-mx-demo", Name: "Comercializadora del Norte SA de CV", Country: "MX"},
	}
	for i := range seed {
		c := &seed[i]
		c.CreatedAt, c.UpdatedAt = now, now
		if err := companies.Save(ctx, repository.NoTX, c); err != nil {
			logger.Fatal().Err(err).Str("company", c.ID).Msg("seed company")
		}
		token, err := sessions.Mint(nil, c.ID, *email, "owner")
		if err != nil {
			logger.Fatal().Err(err).Msg("mint token")
		}
		fmt.Printf("seeded: %s (%s, %s)\n  token: %s\n", c.ID, c.Name, c.Country, token)
	}
	fmt.Println("Seeding complete.")
}
