package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUUID(t *testing.T) {
	const s = "a684455c-b14f-11ea-bf0d-42010aaa0003"
	u, err := StrToUUID(s)
	require.NoError(t, err)
	require.Equal(t, byte(0xa6), u[0])
	require.Equal(t, s, UUIDToStr(u[:]))

	_, err = StrToUUID("not-a-uuid")
	require.ErrorIs(t, err, ErrInvalidData)

	require.Empty(t, UUIDToStr([]byte{1, 2}))

	g := GenerateUUIDStr()
	_, err = StrToUUID(g)
	require.NoError(t, err)
}
