package mariadb

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"github.com/medilink/clinic-queue-backend/config"
)

var (
	db   *sql.DB
	once sync.Once
)

// Connect opens the MariaDB connection. Credentials come from the
// environment via config.
func Connect() *sql.DB {
	once.Do(func() {
		cfg := config.LoadConfig()
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
			cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

		var err error
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open database connection")
		}
		if err = db.Ping(); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		log.Info().Str("host", cfg.DBHost).Str("database", cfg.DBName).Msg("connected to MariaDB")
	})

	return db
}

// GetDB returns the established connection.
func GetDB() *sql.DB {
	return db
}
