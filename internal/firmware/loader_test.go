package firmware

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNeededTrueWhenSentinelAbsent(t *testing.T) {
	sentinel := filepath.Join(t.TempDir(), "loaded")
	l := NewLoader("", nil, sentinel, logrus.NewEntry(logrus.New()))
	if !l.Needed("wlan0") {
		t.Fatal("expected Needed to be true when sentinel is absent")
	}
}

func TestNeededFalseWhenSentinelPresent(t *testing.T) {
	sentinel := filepath.Join(t.TempDir(), "loaded")
	if err := os.WriteFile(sentinel, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLoader("", nil, sentinel, logrus.NewEntry(logrus.New()))
	if l.Needed("wlan0") {
		t.Fatal("expected Needed to be false once sentinel exists")
	}
}

func TestLoadNoopWithoutCommand(t *testing.T) {
	l := NewLoader("", nil, "", logrus.NewEntry(logrus.New()))
	if err := l.Load(context.Background(), "wlan0"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
