package configstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/promptline/internal/types"
)

type loadBackend struct {
	types.Backend
	character *types.Character
	theme     *types.Theme
	settings  *types.Settings
	themeErr  error
}

func (b *loadBackend) GetCharacter(context.Context) (*types.Character, error) {
	return b.character, nil
}

func (b *loadBackend) GetTheme(context.Context) (*types.Theme, error) {
	if b.themeErr != nil {
		return nil, b.themeErr
	}
	return b.theme, nil
}

func (b *loadBackend) GetSettings(context.Context) (*types.Settings, error) {
	return b.settings, nil
}

func TestNewStoreHasDefaultSettings(t *testing.T) {
	s := New()
	assert.Equal(t, types.DefaultSettings(), s.Settings())
	assert.Equal(t, types.Character{}, s.Character())
}

func TestSnapshotValidate(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want error
	}{
		{"empty", Snapshot{}, ErrCharacterRequired},
		{"blank character", Snapshot{Character: types.Character{Name: " \t"}, Theme: types.Theme{ThemeName: "Sea"}}, ErrCharacterRequired},
		{"no theme", Snapshot{Character: types.Character{Name: "Ada"}}, ErrThemeRequired},
		{"ok", Snapshot{Character: types.Character{Name: "Ada"}, Theme: types.Theme{ThemeName: "Sea"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadStoresAllRecords(t *testing.T) {
	b := &loadBackend{
		character: &types.Character{Name: "Ada", Description: "engineer"},
		theme:     &types.Theme{ThemeName: "Sea"},
		settings:  &types.Settings{SessionDuration: 5, MinPromptInterval: 20},
	}
	s := New()

	require.NoError(t, Load(context.Background(), b, s))

	snap := s.Snapshot()
	assert.Equal(t, "engineer", snap.Character.Description)
	assert.Equal(t, "Sea", snap.Theme.ThemeName)
	assert.Equal(t, 20, snap.Settings.MinPromptInterval)
}

func TestLoadKeepsRecordsThatSucceed(t *testing.T) {
	b := &loadBackend{
		character: &types.Character{Name: "Ada"},
		themeErr:  errors.New("503"),
		settings:  &types.Settings{SessionDuration: 1, MinPromptInterval: 10},
	}
	s := New()
	s.SetTheme(types.Theme{ThemeName: "previous"})

	err := Load(context.Background(), b, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load theme")

	assert.Equal(t, "Ada", s.Character().Name)
	assert.Equal(t, "previous", s.Theme().ThemeName)
	assert.Equal(t, 1, s.Settings().SessionDuration)
}
