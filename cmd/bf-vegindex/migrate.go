package main

import (
	"github.com/pressly/goose"
	cli "gopkg.in/urfave/cli.v1"

	_ "github.com/venicegeo/bf-vegindex/migrations"
	"github.com/venicegeo/bf-vegindex/util"
)

func migrateDatabaseAction(*cli.Context) error {
	logContext := &util.BasicLogContext{}
	database, err := getDbConnectionFunc(logContext)
	if err != nil {
		return cli.NewExitError(util.LogSimpleErr(logContext, "Could not open database connection", err).Error(), 1)
	}
	defer database.Close()

	if err = goose.SetDialect("postgres"); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if err = goose.Run("up", database, "."); err != nil {
		return cli.NewExitError(util.LogSimpleErr(logContext, "Migration failed", err).Error(), 1)
	}
	util.LogInfo(logContext, "Database schema is up to date")
	return nil
}
