package service

import (
	"os"
	"testing"

	"cookie-ai-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("info", "console", "")
	os.Exit(m.Run())
}
