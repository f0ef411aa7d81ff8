package mutator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textassist/internal/failure"
	"textassist/internal/surface"
)

func TestReplaceSelection(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		start, end int
		newText    string
		want       string
	}{
		{"ascii", "Hello world", 6, 11, "there", "Hello there"},
		{"middle", "abcdef", 2, 4, "XY", "abXYef"},
		{"prefix", "abcdef", 0, 3, "", "def"},
		{"multibyte", "héllo wörld", 6, 11, "wärld", "héllo wärld"},
		{"emoji", "a😀b", 1, 2, "🙂🙂", "a🙂🙂b"},
	}

	m := New(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			node := surface.NewMemoryNode("n", tc.text).Select(tc.start, tc.end)

			edit, err := m.Replace(node, tc.newText)
			require.NoError(t, err)
			assert.Equal(t, tc.want, node.Text())
			assert.Equal(t, tc.text, edit.Before)
			assert.Equal(t, tc.want, edit.After)
			assert.False(t, edit.Whole)
			assert.Equal(t, 1, node.SetCalls())
		})
	}
}

func TestReplaceWholeFieldWithoutSelection(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
	}{
		{"none", -1, -1},
		{"caret", 4, 4},
		{"reversed", 5, 2},
		{"out of bounds", 2, 99},
		{"negative start", -1, 3},
	}

	m := New(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			node := surface.NewMemoryNode("n", "helo wrld").Select(tc.start, tc.end)

			edit, err := m.Replace(node, "hello wörld ✓")
			require.NoError(t, err)
			assert.Equal(t, "hello wörld ✓", node.Text())
			assert.True(t, edit.Whole)
			assert.Equal(t, "helo wrld", edit.Before)
			assert.Equal(t, 0, edit.Start)
			assert.Equal(t, 9, edit.End)
		})
	}
}

func TestReplaceRejected(t *testing.T) {
	m := New(nil)

	refusing := surface.NewMemoryNode("n", "text").RefuseWrites(true)
	_, err := m.Replace(refusing, "new")
	assert.ErrorIs(t, err, failure.MutationRejected)
	assert.Equal(t, "text", refusing.Text())

	stale := surface.NewMemoryNode("n", "text")
	stale.Invalidate()
	_, err = m.Replace(stale, "new")
	assert.ErrorIs(t, err, failure.MutationRejected)
	assert.ErrorIs(t, err, surface.ErrStale)
	assert.Equal(t, 0, stale.SetCalls())

	_, err = m.Replace(nil, "new")
	assert.ErrorIs(t, err, failure.MutationRejected)

	secret := surface.NewMemoryNode("n", "pw").SetSecret(true)
	_, err = m.Replace(secret, "new")
	assert.ErrorIs(t, err, failure.MutationRejected)
	assert.Equal(t, 0, secret.SetCalls())
}

func TestReplaceAllRestoresExactText(t *testing.T) {
	m := New(nil)
	original := "  héllo\twörld \n"
	node := surface.NewMemoryNode("n", original).Select(2, 7)

	edit, err := m.Replace(node, "HI")
	require.NoError(t, err)
	require.NotEqual(t, original, node.Text())

	require.NoError(t, m.ReplaceAll(node, edit.Before))
	assert.Equal(t, original, node.Text())
}

func TestReplaceAllStale(t *testing.T) {
	m := New(nil)
	node := surface.NewMemoryNode("n", "x")
	node.Invalidate()

	err := m.ReplaceAll(node, "y")
	assert.ErrorIs(t, err, failure.MutationRejected)
}
