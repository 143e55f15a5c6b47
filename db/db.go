package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	// Db is the global database connection object
	Db *gorm.DB
	// Path is the path to the SQLite database file holding the session
	Path = filepath.Join(os.Getenv("HOME"), ".wanderlist", "session.db")
)

// ConfigurePathErr resolves Path from WANDERLIST_HOME, then XDG_DATA_HOME,
// then the user's home directory.
func ConfigurePathErr() error {
	if home := os.Getenv("WANDERLIST_HOME"); home != "" {
		Path = filepath.Join(home, "session.db")
		return nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		Path = filepath.Join(xdg, "wanderlist", "session.db")
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to resolve home directory: %w", err)
	}
	Path = filepath.Join(home, ".wanderlist", "session.db")
	return nil
}

// InitDB initializes the database by creating the necessary directory,
// opening the database connection, migrating tables, and configuring the logger.
func InitDB() error {
	if err := createDBDirectory(); err != nil {
		return err
	}

	if err := openDatabase(); err != nil {
		return err
	}

	if err := migrateTables(Db); err != nil {
		return err
	}

	configureLogger()

	log.Info().Str("path", Path).Msg("Database initialized successfully")
	return nil
}

// GetDB returns the global database handle.
func GetDB() *gorm.DB {
	return Db
}

// createDBDirectory creates the directory for the database file if it does not exist.
func createDBDirectory() error {
	dir := filepath.Dir(Path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			log.Error().Err(err).Msg("Failed to create database directory")
			return err
		}
	}
	return nil
}

// openDatabase opens a connection to the SQLite database.
func openDatabase() error {
	var err error
	Db, err = gorm.Open(sqlite.Open(Path), &gorm.Config{})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize database")
		return err
	}
	return nil
}

// migrateTables performs automatic migration for the key-value table.
func migrateTables(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&Entry{}); err != nil {
		log.Error().Err(err).Msg("Failed to auto-migrate database")
		return err
	}
	return nil
}

// configureLogger silences GORM unless debug logging is on.
func configureLogger() {
	if zerolog.GlobalLevel() == zerolog.Disabled {
		Db.Logger = Db.Logger.LogMode(0)
	} else {
		Db.Logger = Db.Logger.LogMode(4)
	}
}

// CloseDB closes the database connection. A nil Db is not an error.
func CloseDB() error {
	if Db == nil {
		return nil
	}
	sqlDB, err := Db.DB()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get raw database connection")
		return err
	}
	return sqlDB.Close()
}

// Shutdown closes the database and only logs failures; used from signal handlers.
func Shutdown() {
	if err := CloseDB(); err != nil {
		log.Error().Err(err).Msg("Failed to close the database during shutdown")
	}
}
