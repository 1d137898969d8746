package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	HTTPAddr  string
	DataDir   string
	DBPath    string
	BundleDir string
	WebDir    string

	WorkspaceRoot string

	ModelBaseURL string
	ModelName    string
	ModelAPIKey  string
}

func Load() Config {
	loadDotEnv(".env")
	dataDir := getEnv("MODULED_DATA_DIR", "data")
	return Config{
		HTTPAddr:  getEnv("MODULED_HTTP_ADDR", ":8080"),
		DataDir:   dataDir,
		DBPath:    getEnv("MODULED_DB_PATH", filepath.Join(dataDir, "moduled.db")),
		BundleDir: getEnv("MODULED_BUNDLE_DIR", filepath.Join(dataDir, "bundles")),
		WebDir:    getEnv("MODULED_WEB_DIR", "web"),

		WorkspaceRoot: getEnv("MODULED_WORKSPACE_ROOT", filepath.Join(dataDir, "workspaces")),

		ModelBaseURL: getEnv("MODULED_MODEL_BASE_URL", "https://api.openai.com/v1"),
		ModelName:    getEnv("MODULED_MODEL_NAME", ""),
		ModelAPIKey:  getEnv("MODULED_MODEL_API_KEY", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
}
