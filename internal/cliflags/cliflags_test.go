package cliflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlockDefaults(t *testing.T) {
	cfg, err := ParseBlock("sdblockd", []string{"-c", "122880000", "/dev/sdblk"})
	require.NoError(t, err)
	assert.Equal(t, "/dev/sdblk", cfg.MountPath)
	assert.Equal(t, 0, cfg.UID)
	assert.Equal(t, 0600, cfg.Mode)
	assert.Equal(t, uint32(122880000), cfg.CapacityBlocks)
}

func TestParseBlockOctalMode(t *testing.T) {
	cfg, err := ParseBlock("sdblockd", []string{"-m", "0640", "-u", "1000", "-g", "1000", "-d", "2", "-c", "122880000", "/dev/sdblk"})
	require.NoError(t, err)
	assert.Equal(t, 0640, cfg.Mode)
	assert.Equal(t, 1000, cfg.UID)
	assert.Equal(t, 1000, cfg.GID)
	assert.Equal(t, 2, cfg.Dev)
}

func TestParseBlockRequiresMountPath(t *testing.T) {
	_, err := ParseBlock("sdblockd", []string{"-c", "122880000"})
	assert.Error(t, err)
}

func TestParseBlockRequiresCapacity(t *testing.T) {
	_, err := ParseBlock("sdblockd", []string{"/dev/sdblk"})
	assert.Error(t, err)
}

func TestParseTTYDefaults(t *testing.T) {
	cfg, err := ParseTTY("ttyd", []string{"/dev/ttyd0"})
	require.NoError(t, err)
	assert.Equal(t, 115200, cfg.Baud)
	assert.Equal(t, 1, cfg.StopBits)
	assert.False(t, cfg.Parity)
	assert.Equal(t, FlowNone, cfg.Flow)
}

func TestParseTTYOverridesLineSettings(t *testing.T) {
	cfg, err := ParseTTY("ttyd", []string{"-b", "9600", "-s", "2", "-p", "-f", "hard", "/dev/ttyd0"})
	require.NoError(t, err)
	assert.Equal(t, 9600, cfg.Baud)
	assert.Equal(t, 2, cfg.StopBits)
	assert.True(t, cfg.Parity)
	assert.Equal(t, FlowHard, cfg.Flow)
}

func TestParseTTYRejectsInvalidFlow(t *testing.T) {
	_, err := ParseTTY("ttyd", []string{"-f", "bogus", "/dev/ttyd0"})
	assert.Error(t, err)
}

func TestParseTTYRejectsInvalidStopBits(t *testing.T) {
	_, err := ParseTTY("ttyd", []string{"-s", "3", "/dev/ttyd0"})
	assert.Error(t, err)
}
