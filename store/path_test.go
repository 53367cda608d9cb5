package store

import (
	"path/filepath"
	"testing"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestResolvePathPrecedence(t *testing.T) {
	wd := "/srv/site"
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"development default", nil, filepath.Join(wd, DatabaseFile)},
		{"production", map[string]string{"APP_ENV": "production"}, filepath.Join(wd, "data", DatabaseFile)},
		{"container", map[string]string{"DOCKER_CONTAINER": "1", "APP_ENV": "production"}, filepath.Join("/app/data", DatabaseFile)},
		{"kubernetes", map[string]string{"KUBERNETES_SERVICE_HOST": "10.0.0.1"}, filepath.Join("/app/data", DatabaseFile)},
		{"serverless", map[string]string{"VERCEL": "1", "DOCKER_CONTAINER": "1"}, filepath.Join("/tmp", DatabaseFile)},
		{"serverless tmpdir", map[string]string{"AWS_LAMBDA_FUNCTION_NAME": "fn", "TMPDIR": "/var/tmp"}, filepath.Join("/var/tmp", DatabaseFile)},
		{"override wins", map[string]string{"DATABASE_PATH": "/data/custom.db", "VERCEL": "1", "DOCKER_CONTAINER": "1", "APP_ENV": "production"}, "/data/custom.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolvePath(envMap(tt.env), wd)
			if got != tt.want {
				t.Errorf("ResolvePath = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolvePathDeterministic(t *testing.T) {
	env := envMap(map[string]string{"NETLIFY": "true"})
	first := ResolvePath(env, "/w")
	for i := 0; i < 10; i++ {
		if got := ResolvePath(env, "/w"); got != first {
			t.Fatalf("call %d returned %q, first call returned %q", i, got, first)
		}
	}
}

func TestManagerPathOverride(t *testing.T) {
	m := NewManager(Options{Path: "/explicit.db", Getenv: envMap(map[string]string{"DATABASE_PATH": "/env.db"})})
	if got := ResolvePath(m.getenv, "/w"); got != "/explicit.db" {
		t.Errorf("configured path should win, got %q", got)
	}
}
