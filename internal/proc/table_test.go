package proc

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryTable(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable(map[int]string{42: "music.exe", 7: "chat.exe"})

	ok, err := table.Exists(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)

	name, err := table.Name(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "chat.exe", name)

	pids, err := table.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{7, 42}, pids)

	table.Remove(42)
	ok, err = table.Exists(ctx, 42)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = table.Name(ctx, 42)
	require.ErrorIs(t, err, ErrNotFound)

	table.Add(43, "music.exe")
	name, err = table.Name(ctx, 43)
	require.NoError(t, err)
	require.Equal(t, "music.exe", name)
}

func TestSystemTableSeesCurrentProcess(t *testing.T) {
	ctx := context.Background()
	table := SystemTable{}
	pid := os.Getpid()

	ok, err := table.Exists(ctx, pid)
	require.NoError(t, err)
	require.True(t, ok)

	name, err := table.Name(ctx, pid)
	require.NoError(t, err)
	require.NotEmpty(t, name)

	pids, err := table.List(ctx)
	require.NoError(t, err)
	require.Contains(t, pids, pid)
}

func TestSystemTableRejectsInvalidPID(t *testing.T) {
	ctx := context.Background()
	table := SystemTable{}

	ok, err := table.Exists(ctx, 0)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = table.Name(ctx, -1)
	require.ErrorIs(t, err, ErrNotFound)
}
