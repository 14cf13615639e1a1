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
	cli "gopkg.in/urfave/cli.v1"
)

var queryFlags = []cli.Flag{
	cli.StringFlag{Name: "roi", Usage: "GeoJSON file with the region of interest"},
	cli.StringFlag{Name: "start", Value: "2024-01-01", Usage: "Start date, yyyy-MM-dd"},
	cli.StringFlag{Name: "end", Usage: "End date (exclusive), yyyy-MM-dd; defaults to today"},
	cli.Float64Flag{Name: "cloud", Value: 15, Usage: "Maximum scene cloud percentage"},
}

var commands = cli.Commands{
	cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Launch the bf-vegindex webserver",
		Action:  serveAction,
	},
	cli.Command{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "Print the version number of the CLI",
		Action:  versionAction,
	},
	cli.Command{
		Name:   "scenes",
		Usage:  "List the Sentinel-2 scenes available over an ROI",
		Flags:  queryFlags,
		Action: scenesAction,
	},
	cli.Command{
		Name:  "timeseries",
		Usage: "Print the mean NDRE, NDVI and EVI of every scene over each ROI feature",
		Flags: append([]cli.Flag{
			cli.BoolFlag{Name: "csv", Usage: "Print CSV instead of GeoJSON"},
		}, queryFlags...),
		Action: timeSeriesAction,
	},
	cli.Command{
		Name:  "export",
		Usage: "Download the bands and indices of a scene as GeoTIFFs, applying the size limit",
		Flags: append([]cli.Flag{
			cli.StringSliceFlag{Name: "date", Usage: "Scene date, yyyy-MM-dd (repeatable; the first scene is exported)"},
			cli.StringFlag{Name: "dir", Usage: "Download directory; defaults to DOWNLOAD_DIR or ~/Downloads"},
		}, queryFlags...),
		Action: exportAction,
	},
	cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Update database schema",
		Action:  migrateDatabaseAction,
	},
}

func createCliApp() (app *cli.App) {
	app = cli.NewApp()
	app.Name = "bf-vegindex"
	app.Usage = "Vegetation index dashboard over Sentinel-2 imagery"
	app.Version = version
	app.Commands = commands
	return
}
