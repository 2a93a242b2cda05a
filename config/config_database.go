package config

import (
	_ "github.com/expki/go-imagesearch/env"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Database struct {
	Sqlite           string                `json:"sqlite"`
	Postgres         SingleOrSlice[string] `json:"postgres"`
	PostgresReadOnly SingleOrSlice[string] `json:"postgres_readonly"`
	LogLevel         LogLevel              `json:"log_level"`
}

func (c Database) GetDialectors() (readwrite, readonly []gorm.Dialector) {
	if c.Sqlite != "" {
		readwrite = append(readwrite, sqlite.Open(c.Sqlite))
		return
	}
	for _, dsn := range c.Postgres {
		readwrite = append(readwrite, postgres.Open(dsn))
	}
	for _, dsn := range c.PostgresReadOnly {
		readonly = append(readonly, postgres.Open(dsn))
	}
	return
}
