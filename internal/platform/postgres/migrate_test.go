package postgres

import (
	"context"
	"testing"

	"github.com/phrazzld/scry-gen/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := Migrations(logger.Discard())
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, int64(1), migrations[0].Version)
	assert.Equal(t, int64(2), migrations[1].Version)
}

func TestMigrateUnknownCommand(t *testing.T) {
	err := Migrate(context.Background(), nil, "sideways", logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown migration command: sideways")
}

func TestOpenRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), "", logger.Discard())
	assert.Error(t, err)
}
