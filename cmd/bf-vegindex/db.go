package main

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	_ "github.com/lib/pq"
	"github.com/venicegeo/bf-vegindex/util"
)

// getDbConnection opens a new database connection from DATABASE_URL
func getDbConnection(ctx util.LogContext) (*sql.DB, error) {
	connStr := util.GetDatabaseURL()
	if connStr == "" {
		return nil, errors.New("Could not get DB connection: " + util.DATABASE_URL + " is not set")
	}

	dbURI, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("Invalid %s: %v", util.DATABASE_URL, err)
	}
	// pq expects SSL unless told otherwise
	params := dbURI.Query()
	if params.Get("sslmode") == "" {
		params.Set("sslmode", "disable")
	}
	dbURI.RawQuery = params.Encode()

	util.LogInfo(ctx, fmt.Sprintf("Creating database connection at: `%s`", dbURI.Redacted()))
	db, err := sql.Open("postgres", dbURI.String())
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

var getDbConnectionFunc = getDbConnection
