package runerrors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_FromPanic(t *testing.T) {
	pe := func() (pe *PanicError) {
		defer func() {
			if r := recover(); r != nil {
				pe = FromPanic(r)
			}
		}()

		panic("boom")
	}()

	require.NotNil(t, pe)
	require.Equal(t, "panic in node: boom", pe.Error())
	require.NotEmpty(t, pe.Stacktrace())
}

func Test_FromPanic_ErrorValue(t *testing.T) {
	pe := FromPanic(assertedError{})

	require.Equal(t, "panic in node: asserted", pe.Error())
}

type assertedError struct{}

func (assertedError) Error() string { return "asserted" }
