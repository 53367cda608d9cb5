package store

import "path/filepath"

// Environment variables consulted by ResolvePath.
const (
	EnvDatabasePath = "DATABASE_PATH"
	EnvAppEnv       = "APP_ENV"
)

const (
	// DatabaseFile is the file name used by every platform convention.
	DatabaseFile = "agency.db"

	containerDataDir = "/app/data"
)

var serverlessMarkers = []string{"VERCEL", "AWS_LAMBDA_FUNCTION_NAME", "NETLIFY"}

var containerMarkers = []string{"DOCKER_CONTAINER", "KUBERNETES_SERVICE_HOST"}

// ResolvePath picks the database file location from the environment:
// explicit override, serverless temp dir, container data dir, production
// working directory, then the development default. It performs no I/O.
func ResolvePath(getenv func(string) string, workDir string) string {
	if p := getenv(EnvDatabasePath); p != "" {
		return p
	}
	if anySet(getenv, serverlessMarkers) {
		tmp := getenv("TMPDIR")
		if tmp == "" {
			tmp = "/tmp"
		}
		return filepath.Join(tmp, DatabaseFile)
	}
	if anySet(getenv, containerMarkers) {
		return filepath.Join(containerDataDir, DatabaseFile)
	}
	if getenv(EnvAppEnv) == "production" {
		return filepath.Join(workDir, "data", DatabaseFile)
	}
	return filepath.Join(workDir, DatabaseFile)
}

// LegacyPath is where earlier releases kept the database.
func LegacyPath(workDir string) string {
	return filepath.Join(workDir, "content", "blog.db")
}

func anySet(getenv func(string) string, keys []string) bool {
	for _, k := range keys {
		if getenv(k) != "" {
			return true
		}
	}
	return false
}
