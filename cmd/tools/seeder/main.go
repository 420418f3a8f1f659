package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-grocery/internal/config"
	"github.com/noah-isme/backend-grocery/internal/obs"
)

type seedProduct struct {
	name        string
	price       int64
	imageURL    string
	category    string
	description string
	stock       int32
}

var products = []seedProduct{
	{"Red Apple", 40, "https://images.unsplash.com/photo-1568702846914-96b305d2aaeb", "Fruits", "Crisp and juicy red apples, sold per piece.", 120},
	{"Banana Bunch", 30, "https://images.unsplash.com/photo-1571771894821-ce9b6c11b08e", "Fruits", "A bunch of ripe bananas, around 6 pieces.", 80},
	{"Spinach Pack", 20, "https://images.unsplash.com/photo-1576045057995-568f588f82fb", "Vegetables", "Fresh washed spinach leaves, 250g pack.", 60},
	{"Milk 1L", 50, "https://images.unsplash.com/photo-1550583724-b2692b85b150", "Dairy", "Full cream pasteurised milk, 1 litre.", 100},
	{"Paneer 200g", 120, "https://images.unsplash.com/photo-1631452180519-c014fe946bc7", "Dairy", "Soft fresh paneer, 200g block.", 40},
	{"Carrot 1kg", 35, "https://images.unsplash.com/photo-1598170845058-32b9d6a5da37", "Vegetables", "Sweet orange carrots, 1kg bag.", 70},
	{"Tomatoes 1kg", 49, "https://images.unsplash.com/photo-1592924357228-91a4daadcfea", "Vegetables", "Vine ripened tomatoes, 1kg.", 90},
	{"Orange 1kg", 60, "https://images.unsplash.com/photo-1547514701-42782101795e", "Fruits", "Seedless oranges, approximately 4 to 5 per kg.", 50},
}

func main() {
	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "console"), envOrDefault("OBS_LOG_LEVEL", "info"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	inserted := 0
	for _, p := range products {
		tag, err := pool.Exec(ctx, `
			INSERT INTO products (name, price, image_url, category, description, stock)
			SELECT $1, $2, $3, $4, $5, $6
			WHERE NOT EXISTS (SELECT 1 FROM products WHERE lower(name) = lower($1))`,
			p.name, p.price, p.imageURL, p.category, p.description, p.stock,
		)
		if err != nil {
			logger.Fatal().Err(err).Str("product", p.name).Msg("seed product")
		}
		if tag.RowsAffected() > 0 {
			inserted++
			logger.Info().Str("product", p.name).Msg("seeded")
		}
	}
	logger.Info().Int("inserted", inserted).Int("total", len(products)).Msg("seeding complete")
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
