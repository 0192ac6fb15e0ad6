package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignatureSet_IsPersistent(t *testing.T) {
	a := NewSignatureSet("s1")
	b := a.With("s2", "s1", "")

	require.Equal(t, 1, a.Len())
	require.False(t, a.Contains("s2"))
	require.Equal(t, 2, b.Len())
	require.Equal(t, []Signature{"s1", "s2"}, b.Slice())
}

func TestSignatureSet_ZeroValue(t *testing.T) {
	var s SignatureSet
	require.Equal(t, 0, s.Len())
	require.Empty(t, s.Slice())
	require.False(t, s.Contains("x"))
}

func TestMissingFromRequired(t *testing.T) {
	alice := Authorization{Account: "alice", Permission: "active"}
	bob := Authorization{Account: "bob", Permission: "active"}
	signed := map[string]bool{}
	isSigned := func(a Authorization) bool { return signed[a.Account] }

	require.NotNil(t, MissingFromRequired(nil, isSigned))
	require.Empty(t, MissingFromRequired(nil, isSigned))

	require.Equal(t, []Authorization{alice, bob}, MissingFromRequired([]Authorization{alice, bob}, isSigned))
	signed["alice"] = true
	require.Equal(t, []Authorization{bob}, MissingFromRequired([]Authorization{alice, bob}, isSigned))
	signed["bob"] = true
	require.Nil(t, MissingFromRequired([]Authorization{alice, bob}, isSigned))
}

func TestMissingFromThreshold(t *testing.T) {
	owners := []Authorization{{Account: "A"}, {Account: "B"}, {Account: "C"}}
	signed := map[string]bool{}
	isSigned := func(a Authorization) bool { return signed[a.Account] }

	require.Len(t, MissingFromThreshold(owners, 2, isSigned), 3)
	signed["A"] = true
	require.Equal(t, []Authorization{{Account: "B"}, {Account: "C"}}, MissingFromThreshold(owners, 2, isSigned))
	signed["B"] = true
	require.Nil(t, MissingFromThreshold(owners, 2, isSigned))
}

func TestMapConcurrently(t *testing.T) {
	out, err := MapConcurrently(context.Background(), []int{1, 2, 3}, func(_ context.Context, i int) (int, error) {
		return i * 10, nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{10, 20, 30}, out)

	boom := errors.New("boom")
	_, err = MapConcurrently(context.Background(), []int{1, 2}, func(_ context.Context, i int) (int, error) {
		if i == 2 {
			return 0, boom
		}
		return i, nil
	})
	require.ErrorIs(t, err, boom)
}
