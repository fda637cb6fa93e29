package server

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the splitd API server.
type ServerConfig struct {
	// port the HTTP API listens on.
	ServerPort string `yaml:"port"`

	// connection string of the PostgreSQL database.
	DBURI string `yaml:"dbURI"`

	// path to the schema repository directory. Empty disables schema checks.
	SchemaRepository string `yaml:"schemaRepository"`

	// secret to verify bearer tokens with. Empty disables authentication,
	// and every request is anonymous.
	TokenSecret string `yaml:"tokenSecret"`

	// log level: DEBUG, INFO, WARN, ERROR or OFF. Default INFO.
	LogLevel string `yaml:"loglevel"`
}

func LoadServerConfig(filepath string) (*ServerConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (*ServerConfig, error) {
	var out ServerConfig
	if err := yaml.Unmarshal(conf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
