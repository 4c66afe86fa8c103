package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashBytes(t *testing.T) {
	h1 := HashBytes([]byte(`{"bankrecon_dir":"/srv"}`))
	assert.Len(t, h1, 64)
	assert.Equal(t, h1, HashBytes([]byte(`{"bankrecon_dir":"/srv"}`)))
	assert.NotEqual(t, h1, HashBytes([]byte(`{"bankrecon_dir":"/other"}`)))
}

func TestLoadRecordsHash(t *testing.T) {
	content := `{"python": "python3.12"}`
	cfg := Load(writeConfig(t, content))
	assert.Equal(t, HashBytes([]byte(content)), cfg.Source.Hash)
	assert.Equal(t, cfg.Source.Hash[:12], ShortHash(cfg.Source.Hash))
}
