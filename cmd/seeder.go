package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initGormDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		if clearData {
			for _, table := range []string{"payments", "issues", "issue_categories", "users"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear table %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		password := "password"
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

		accounts := []struct {
			Email string
			Name  string
			Role  string
		}{
			{"admin@civicreport.io", "City Admin", "admin"},
			{"siti.staff@civicreport.io", "Siti Staff", "staff"},
			{"budi.staff@civicreport.io", "Budi Staff", "staff"},
			{"warga@mail.com", "Warga Citizen", "user"},
		}

		for _, a := range accounts {
			if userExists(db, a.Email) {
				fmt.Printf("user %s already exists; skipping\n", a.Email)
				continue
			}
			if err := db.Exec(
				"INSERT INTO users (email, name, password_hash, role, status, max_issues, assigned_issues, created_at, updated_at) VALUES (?, ?, ?, ?, 'active', ?, '[]', now(), now())",
				a.Email, a.Name, string(hash), a.Role, cfg.Quota.FreeIssueLimit,
			).Error; err != nil {
				log.Fatalf("failed to insert user %s: %v", a.Email, err)
			}
			fmt.Printf("Seeded %s user: %s\n", a.Role, a.Email)
		}

		categories := []struct {
			Name string
			Desc string
		}{
			{"roads", "potholes, broken pavement and traffic hazards"},
			{"lighting", "broken or missing street lights"},
			{"sanitation", "garbage collection and illegal dumping"},
			{"water", "leaks, flooding and drainage problems"},
			{"parks", "damaged playgrounds and public green spaces"},
			{"other", "anything that does not fit the other categories"},
		}

		for _, c := range categories {
			var exists int
			row := db.Raw("SELECT 1 FROM issue_categories WHERE name = ?", c.Name).Row()
			if err := row.Scan(&exists); err != nil {

				if err := db.Exec("INSERT INTO issue_categories (name, description, is_active, created_at, updated_at) VALUES (?, ?, true, now(), now())", c.Name, c.Desc).Error; err != nil {
					log.Fatalf("failed to insert issue category %s: %v", c.Name, err)
				}
				fmt.Printf("Seeded issue category: %s\n", c.Name)
			}
		}

		fmt.Println("Issue categories seeded successfully")
	},
}

func userExists(db *gorm.DB, email string) bool {
	var exists int
	row := db.Raw("SELECT 1 FROM users WHERE email = ?", email).Row()
	return row.Scan(&exists) == nil
}
