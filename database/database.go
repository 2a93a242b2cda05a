package database

import (
	"errors"

	"github.com/expki/go-imagesearch/config"
	_ "github.com/expki/go-imagesearch/env"
	"github.com/expki/go-imagesearch/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
)

type Database struct {
	*gorm.DB
}

func New(cfg config.Database) (db *Database, err error) {
	// get dialectors from config
	readwrite, readonly := cfg.GetDialectors()
	if len(readwrite) == 0 {
		return nil, errors.New("no writable database configured")
	}

	// open primary database connection
	gdb, err := gorm.Open(readwrite[0], &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		Logger:                 gormlogger.Default.LogMode(cfg.LogLevel.Gorm()),
	})
	if err != nil {
		return nil, errors.Join(errors.New("failed to connect database"), err)
	}
	err = gdb.Clauses(dbresolver.Write).AutoMigrate(
		&Image{},
		&Embedding{},
		&SearchQuery{},
		&SimilarityResult{},
	)
	if err != nil {
		return nil, errors.Join(errors.New("failed to migrate database"), err)
	}

	// add resolver connections
	if len(readonly)+len(readwrite) > 1 {
		err = gdb.Use(dbresolver.Register(dbresolver.Config{
			Sources:           readwrite,
			Replicas:          readonly,
			Policy:            dbresolver.StrictRoundRobinPolicy(),
			TraceResolverMode: true,
		}))
		if err != nil {
			logger.Sugar().Errorf("failed to register database resolver: %v", err)
			return nil, err
		}
	}
	return &Database{DB: gdb}, nil
}
