package main

import (
	"context"
	"log"
	"os"

	"github.com/travelhub/crm-escalation/db"
	"github.com/travelhub/crm-escalation/internal/bootstrap"
	"github.com/travelhub/crm-escalation/internal/config"
)

func main() {
	if err := config.LoadConfig(os.Getenv("CRM_CONFIG_PATH")); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pg, err := bootstrap.OpenDatabase(config.App.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pg.Close()

	log.Println("Running migration...")
	if err := db.NewStore(pg).Migrate(context.Background()); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration applied successfully!")
}
