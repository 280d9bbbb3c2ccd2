package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/manabi/core"
	"github.com/trezcool/manabi/core/material"
	"github.com/trezcool/manabi/core/user"
	logsvc "github.com/trezcool/manabi/services/logger"
	"github.com/trezcool/manabi/storage/database"
	"github.com/trezcool/manabi/storage/database/sqlxrepos"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	if err := conf.Validate(); err != nil {
		logger.Fatal("invalid config", err)
	}

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		conf:     conf,
		logger:   logger,
		db:       db,
		usrSvc:   user.NewService(sqlxrepos.NewUserRepository(db), conf),
		matSvc:   material.NewService(db, sqlxrepos.NewMaterialRepository(db), logger),
		validate: validate,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logger.Wait()
	if err != nil {
		if err != errHelp {
			log.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
