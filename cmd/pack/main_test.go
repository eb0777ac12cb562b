package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Brownie44l1/skincheck-api/internal/archive"
)

func TestPack(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ISIC_0001.png"), buf.Bytes(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ISIC_0002.PNG"), buf.Bytes(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o755))

	dsn := "sqlite://" + filepath.Join(t.TempDir(), "images.db")
	n, err := pack(context.Background(), dir, dsn, true, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	store, err := archive.Open(dsn)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.Get(context.Background(), "ISIC_0002")
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), got)
	_, err = store.Get(context.Background(), "notes")
	assert.ErrorIs(t, err, archive.ErrNotFound)
}

func TestPackVerifyRejectsCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ISIC_0003.jpg"), []byte("garbage"), 0o644))

	dsn := "leveldb://" + filepath.Join(t.TempDir(), "images")
	_, err := pack(context.Background(), dir, dsn, true, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "ISIC_0003.jpg")

	n, err := pack(context.Background(), dir, dsn, false, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
