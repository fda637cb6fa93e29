package server_test

import (
	"testing"

	kcf "github.com/felafax/split/pkg/configs/server"
)

func TestLoadServerConfig(t *testing.T) {

	t.Run("it can be created from a config file", func(t *testing.T) {
		result, err := kcf.LoadServerConfig("./testdata/config.yaml")

		if err != nil {
			t.Fatalf("failed to parse config.: %v", err)
		}
		expectedURI := "postgres://split-test-pgdb-svc:32555/split"
		if result.DBURI != expectedURI {
			t.Errorf("unmatch dbURI:%s, expected:%s", result.DBURI, expectedURI)
		}
		expectedServerPort := "8080"
		if result.ServerPort != expectedServerPort {
			t.Errorf("unmatch serverport:%s, expected:%s", result.ServerPort, expectedServerPort)
		}
		if result.SchemaRepository != "/mnt/schema" {
			t.Errorf("unmatch schemaRepository:%s", result.SchemaRepository)
		}
		if result.TokenSecret != "local-dev-secret" {
			t.Errorf("unmatch tokenSecret:%s", result.TokenSecret)
		}
		if result.LogLevel != "DEBUG" {
			t.Errorf("unmatch loglevel:%s", result.LogLevel)
		}
	})

	t.Run("it fails on a missing file", func(t *testing.T) {
		if _, err := kcf.LoadServerConfig("./testdata/no-such-file.yaml"); err == nil {
			t.Error("error expected, but nil")
		}
	})
}
