package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})

	l.Debugf("hidden %d", 1)
	l.Infof("also hidden")
	assert.Empty(t, buf.String())

	l.Warnf("visible warning")
	assert.Contains(t, buf.String(), "[WARN]")
	assert.Contains(t, buf.String(), "visible warning")
}

func TestWithUnitTagsMessages(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Output: &buf, Unit: "ttyd"})
	l.Infof("started")
	assert.Contains(t, buf.String(), "[ttyd]")
}

func TestWithUnitIsIndependentCopy(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: LevelDebug, Output: &buf})
	tagged := base.WithUnit("part1")

	tagged.Infof("from tagged")

	assert.Contains(t, buf.String(), "[part1]")
}

func TestPrintfSatisfiesLoggerInterface(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Output: &buf})
	l.Printf("hello %s", "world")
	assert.Contains(t, buf.String(), "hello world")
}

func TestDefaultAndSetDefault(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(New(Config{Level: LevelDebug, Output: &buf}))
	Default().Infof("via default")
	assert.Contains(t, buf.String(), "via default")
}
