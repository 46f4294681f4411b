package main

import (
	"database/sql"
	"flag"
	"log"

	"github.com/nagomirachel/flagsmith/internal/platform/config"
	"github.com/nagomirachel/flagsmith/internal/platform/database"
	"github.com/nagomirachel/flagsmith/internal/platform/models"
	"github.com/nagomirachel/flagsmith/internal/platform/repositories"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	seed := flag.Bool("seed", false, "Seed a demo organisation, project, environment, feature and admin user")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Schema applied")

	if *seed {
		if err := seedDemo(db); err != nil {
			log.Fatalf("Seed failed: %v", err)
		}
	}
}

// seedDemo creates the minimal tenancy graph needed to exercise the API by
// hand: one organisation, project, environment, feature, and an admin user
// with a known password.
func seedDemo(db *sql.DB) error {
	org := &models.Organisation{Name: "Demo Org"}
	if err := repositories.NewOrganisationRepository(db).Create(org); err != nil {
		return err
	}

	project := &models.Project{OrganisationID: org.ID, Name: "Demo Project"}
	if err := repositories.NewProjectRepository(db).Create(project); err != nil {
		return err
	}

	env := &models.Environment{ProjectID: project.ID, Name: "Development"}
	if err := repositories.NewEnvironmentRepository(db).Create(env); err != nil {
		return err
	}

	feature := &models.Feature{ProjectID: project.ID, Name: "demo_flag"}
	if err := repositories.NewFeatureRepository(db).Create(feature); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := &models.User{OrganisationID: org.ID, Email: "admin@example.com", PasswordHash: string(hash)}
	if err := repositories.NewUserRepository(db).Create(user); err != nil {
		return err
	}

	log.Printf("Seeded environment api_key=%s feature_id=%s user=%s password=changeme", env.APIKey, feature.ID, user.Email)
	return nil
}
