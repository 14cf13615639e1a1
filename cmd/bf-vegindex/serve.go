// Copyright 2018, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/venicegeo/bf-vegindex/dashboard"
	"github.com/venicegeo/bf-vegindex/export"
	"github.com/venicegeo/bf-vegindex/gee"
	"github.com/venicegeo/bf-vegindex/history"
	"github.com/venicegeo/bf-vegindex/session"
	"github.com/venicegeo/bf-vegindex/util"
	cli "gopkg.in/urfave/cli.v1"
)

func newEngine(ctx context.Context) (gee.Engine, error) {
	return gee.NewClient(ctx, gee.ConfigFromEnv())
}

var newEngineFunc = newEngine

func newService(ctx context.Context, guard *export.Guard) (*dashboard.Service, error) {
	engine, err := newEngineFunc(ctx)
	if err != nil {
		return nil, err
	}
	return dashboard.NewService(engine, guard, dashboard.DefaultSceneCacheSize)
}

func newSessionStore(ctx util.LogContext) (session.Store, error) {
	redisURL := util.GetRedisURL()
	if redisURL == "" {
		util.LogInfo(ctx, "No REDIS_URL found, keeping sessions in memory")
		return session.NewMemoryStore(), nil
	}
	return session.NewRedisStoreFromURL(context.Background(), redisURL, util.GetSessionMaxIdle())
}

func newHistoryStore(ctx util.LogContext) (history.Store, error) {
	if util.GetDatabaseURL() == "" {
		util.LogInfo(ctx, "No DATABASE_URL found, keeping export history in memory")
		return history.NewMemoryStore(), nil
	}
	db, err := getDbConnectionFunc(ctx)
	if err != nil {
		return nil, err
	}
	return history.NewPostgresStore(db), nil
}

func createDashboardContext(ctx util.LogContext) (dashboard.Context, error) {
	guard, err := export.GuardFromEnv(context.Background())
	if err != nil {
		return dashboard.Context{}, err
	}
	service, err := newService(context.Background(), guard)
	if err != nil {
		return dashboard.Context{}, err
	}
	sessions, err := newSessionStore(ctx)
	if err != nil {
		return dashboard.Context{}, err
	}
	exports, err := newHistoryStore(ctx)
	if err != nil {
		return dashboard.Context{}, err
	}
	return dashboard.Context{Service: service, Sessions: sessions, History: exports}, nil
}

func createRouter(dashboardContext dashboard.Context) *mux.Router {
	router := mux.NewRouter()
	dashboard.RegisterRoutes(router, dashboardContext)
	return router
}

func serveAction(*cli.Context) {
	logContext := &(util.BasicLogContext{})

	portStr := util.GetPortStr()

	dashboardContext, err := createDashboardContext(logContext)
	if err != nil {
		util.LogSimpleErr(logContext, "Failed to create dashboard: ", err)
		return
	}

	janitor, err := session.NewJanitor(dashboardContext.Sessions, util.GetSessionMaxIdle(), session.DefaultSweepSchedule)
	if err != nil {
		util.LogSimpleErr(logContext, "Failed to schedule session janitor: ", err)
		return
	}
	janitor.Start()
	defer janitor.Stop()

	util.LogInfo(logContext, "Listening on port "+portStr)
	launchServerFunc(portStr, createRouter(dashboardContext))
}

var launchServerFunc = launchServer

func launchServer(portStr string, router *mux.Router) {
	server := http.Server{
		Addr:              portStr,
		Handler:           router,
		ReadHeaderTimeout: 30 * time.Second,
	}

	util.Logger().Fatal(server.ListenAndServe())
}
