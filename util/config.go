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

package util

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	PORT                   = "PORT"
	EE_PROJECT             = "EE_PROJECT"
	EE_API_URL             = "EE_API_URL"
	EARTHENGINE_TOKEN      = "EARTHENGINE_TOKEN"
	EE_REQUESTS_PER_SECOND = "EE_REQUESTS_PER_SECOND"
	DOWNLOAD_DIR           = "DOWNLOAD_DIR"
	EXPORT_SIZE_LIMIT_MB   = "EXPORT_SIZE_LIMIT_MB"
	EXPORT_S3_BUCKET       = "EXPORT_S3_BUCKET"
	REDIS_URL              = "REDIS_URL"
	DATABASE_URL           = "DATABASE_URL"
	SESSION_MAX_IDLE       = "SESSION_MAX_IDLE"
)

const (
	defaultEEAPIURL          = "https://earthengine.googleapis.com/"
	defaultRequestsPerSecond = 5.0
	defaultExportSizeLimitMB = 40
	defaultSessionMaxIdle    = 2 * time.Hour
)

// LoadDotEnv reads a .env file into the environment when one exists.
// Values already present in the environment win.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		LogInfo(&BasicLogContext{}, "No .env file found, using environment variables")
	}
}

// GetPortStr returns the listen address for the PORT environment variable
func GetPortStr() string {
	if port, ok := os.LookupEnv(PORT); ok && port != "" {
		return ":" + port
	}
	return ":8080"
}

// GetEEProject returns the Cloud project used to bill Earth Engine requests
func GetEEProject() string {
	project, ok := os.LookupEnv(EE_PROJECT)
	if !ok {
		LogAlert(&BasicLogContext{}, "Did not get Earth Engine project from the environment. Using 'earthengine-legacy'.")
		return "earthengine-legacy"
	}
	return project
}

// GetEEAPIURL returns the Earth Engine REST base URL
func GetEEAPIURL() string {
	if apiURL, ok := os.LookupEnv(EE_API_URL); ok && apiURL != "" {
		return apiURL
	}
	return defaultEEAPIURL
}

// GetEarthEngineToken returns the stored OAuth2 credentials for Earth Engine,
// or an empty string when application default credentials should be used
func GetEarthEngineToken() string {
	return os.Getenv(EARTHENGINE_TOKEN)
}

// GetEERequestsPerSecond returns the outbound request budget for the remote API
func GetEERequestsPerSecond() float64 {
	raw := os.Getenv(EE_REQUESTS_PER_SECOND)
	if raw == "" {
		return defaultRequestsPerSecond
	}
	rps, err := strconv.ParseFloat(raw, 64)
	if err != nil || rps <= 0 {
		LogAlert(&BasicLogContext{}, "Invalid "+EE_REQUESTS_PER_SECOND+" value: "+raw+". Using default.")
		return defaultRequestsPerSecond
	}
	return rps
}

// GetDownloadDir returns the directory exports are written to.
// Defaults to the Downloads folder of the current user.
func GetDownloadDir() string {
	if dir, ok := os.LookupEnv(DOWNLOAD_DIR); ok && dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		LogAlert(&BasicLogContext{}, "Could not determine home directory; exporting to the working directory")
		return "Downloads"
	}
	return filepath.Join(home, "Downloads")
}

// GetExportSizeLimit returns the maximum size, in bytes, of a kept export file
func GetExportSizeLimit() int64 {
	mb := int64(defaultExportSizeLimitMB)
	if raw := os.Getenv(EXPORT_SIZE_LIMIT_MB); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			mb = parsed
		} else {
			LogAlert(&BasicLogContext{}, "Invalid "+EXPORT_SIZE_LIMIT_MB+" value: "+raw+". Using default.")
		}
	}
	return mb * 1024 * 1024
}

// GetExportS3Bucket returns the bucket kept exports are mirrored to, if any
func GetExportS3Bucket() string {
	return os.Getenv(EXPORT_S3_BUCKET)
}

// GetRedisURL returns the session store URL; empty means in-memory sessions
func GetRedisURL() string {
	return os.Getenv(REDIS_URL)
}

// GetDatabaseURL returns the export history database URL; empty means in-memory history
func GetDatabaseURL() string {
	return os.Getenv(DATABASE_URL)
}

// GetSessionMaxIdle returns how long an untouched session is kept
func GetSessionMaxIdle() time.Duration {
	duration, err := time.ParseDuration(os.Getenv(SESSION_MAX_IDLE))
	if err != nil || duration < time.Minute {
		return defaultSessionMaxIdle
	}
	return duration
}
