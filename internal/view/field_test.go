package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldEditor_CommitCallsOnChange(t *testing.T) {
	var got []string
	f := NewFieldEditor("old@mail.io", false, func(v string) { got = append(got, v) })

	require.NoError(t, f.Begin())
	assert.True(t, f.Editing())
	f.Input("new@mail.io")
	assert.True(t, f.Commit())

	assert.False(t, f.Editing())
	assert.Equal(t, "new@mail.io", f.Value())
	assert.Equal(t, []string{"new@mail.io"}, got)
}

func TestFieldEditor_UnchangedCommitIsSilent(t *testing.T) {
	calls := 0
	f := NewFieldEditor("same", false, func(string) { calls++ })

	changed, err := f.Edit("same")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Zero(t, calls)
}

func TestFieldEditor_Disabled(t *testing.T) {
	calls := 0
	f := NewFieldEditor("v", true, func(string) { calls++ })

	assert.ErrorIs(t, f.Begin(), ErrFieldDisabled)
	_, err := f.Edit("w")
	assert.ErrorIs(t, err, ErrFieldDisabled)
	assert.Zero(t, calls)
}

func TestFieldEditor_DisablingAbortsEdit(t *testing.T) {
	calls := 0
	f := NewFieldEditor("v", false, func(string) { calls++ })

	require.NoError(t, f.Begin())
	f.Input("w")
	f.SetDisabled(true)

	assert.False(t, f.Editing())
	assert.False(t, f.Commit())
	assert.Equal(t, "v", f.Value())
	assert.Zero(t, calls)
}

func TestFieldEditor_Cancel(t *testing.T) {
	calls := 0
	f := NewFieldEditor("v", false, func(string) { calls++ })

	require.NoError(t, f.Begin())
	f.Input("w")
	f.Cancel()

	assert.False(t, f.Commit())
	assert.Equal(t, "v", f.Value())
	assert.Zero(t, calls)
}

func TestFieldEditor_InputIgnoredWhenNotEditing(t *testing.T) {
	f := NewFieldEditor("v", false, nil)
	f.Input("w")
	assert.False(t, f.Commit())
	assert.Equal(t, "v", f.Value())
}
