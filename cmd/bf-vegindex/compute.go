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
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/venicegeo/bf-vegindex/dashboard"
	"github.com/venicegeo/bf-vegindex/export"
	"github.com/venicegeo/bf-vegindex/model"
	"github.com/venicegeo/bf-vegindex/roi"
	"github.com/venicegeo/bf-vegindex/util"
	cli "gopkg.in/urfave/cli.v1"
)

// queryFromFlags reads the ROI file and the query flags shared by the compute commands
func queryFromFlags(c *cli.Context) (*roi.ROI, model.SceneQuery, error) {
	query := model.DefaultSceneQuery(time.Now())
	if c.String("roi") == "" {
		return nil, query, errors.New("--roi is required")
	}
	region, err := roi.ParseFile(c.String("roi"))
	if err != nil {
		return nil, query, err
	}
	if query.Start, err = model.ParseDate(c.String("start")); err != nil {
		return nil, query, err
	}
	if end := c.String("end"); end != "" {
		if query.End, err = model.ParseDate(end); err != nil {
			return nil, query, err
		}
	}
	query.CloudLimit = c.Float64("cloud")
	return region, query, query.Validate()
}

func exitErr(err error) error {
	return cli.NewExitError(err.Error(), 1)
}

func scenesAction(c *cli.Context) error {
	region, query, err := queryFromFlags(c)
	if err != nil {
		return exitErr(err)
	}
	service, err := newService(context.Background(), export.NewGuard(util.GetDownloadDir(), util.GetExportSizeLimit()))
	if err != nil {
		return exitErr(err)
	}
	scenes, err := service.Scenes(context.Background(), region, query)
	if err != nil {
		return exitErr(err)
	}

	writer := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "DATE\tCLOUD %\tID")
	for _, scene := range scenes {
		fmt.Fprintf(writer, "%s\t%.2f\t%s\n", scene.Date, scene.CloudPercentage, scene.ID)
	}
	return writer.Flush()
}

func timeSeriesAction(c *cli.Context) error {
	region, query, err := queryFromFlags(c)
	if err != nil {
		return exitErr(err)
	}
	service, err := newService(context.Background(), export.NewGuard(util.GetDownloadDir(), util.GetExportSizeLimit()))
	if err != nil {
		return exitErr(err)
	}
	rows, err := service.TimeSeries(context.Background(), region, query)
	if err != nil {
		return exitErr(err)
	}

	if c.Bool("csv") {
		return dashboard.WriteSeriesCSV(c.App.Writer, rows)
	}
	multiResult := model.MultiResult{FeatureCreators: make([]model.GeoJSONFeatureCreator, len(rows))}
	for i, row := range rows {
		multiResult.FeatureCreators[i] = row
	}
	featureCollection, err := multiResult.GeoJSONFeatureCollection()
	if err != nil {
		return exitErr(err)
	}
	_, err = fmt.Fprintln(c.App.Writer, featureCollection.String())
	return err
}

func exportAction(c *cli.Context) error {
	region, query, err := queryFromFlags(c)
	if err != nil {
		return exitErr(err)
	}
	guard, err := export.GuardFromEnv(context.Background())
	if err != nil {
		return exitErr(err)
	}
	if dir := c.String("dir"); dir != "" {
		guard.Dir = dir
	}
	service, err := newService(context.Background(), guard)
	if err != nil {
		return exitErr(err)
	}
	result, err := service.Export(context.Background(), region, query, c.StringSlice("date"))
	if errors.Is(err, dashboard.ErrNoSelection) {
		return exitErr(errors.New("--date is required"))
	}
	if err != nil {
		return exitErr(err)
	}

	fmt.Fprintf(c.App.Writer, "%s: %s\n", result.Status, result.Message)
	for _, file := range result.Files {
		state := "kept"
		if !file.Kept {
			state = "deleted"
		}
		fmt.Fprintf(c.App.Writer, "  %s (%d bytes, %s)\n", file.Path, file.SizeBytes, state)
	}
	if result.Status != model.ExportSucceeded {
		return cli.NewExitError(result.Message, 2)
	}
	return nil
}
