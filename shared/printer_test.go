package shared

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufferHook struct {
	strings.Builder
	closed bool
}

func (b *bufferHook) Close() error {
	b.closed = true
	return nil
}

func TestNewPrinterRejectsMissingHooks(t *testing.T) {
	_, err := NewPrinter("  ")
	assert.Error(t, err)

	_, err = NewPrinter("  ", nil)
	assert.Error(t, err)
}

func TestPrinterIndentsEveryLine(t *testing.T) {
	hook := &bufferHook{}
	p, err := NewPrinter("│ ", hook)
	require.NoError(t, err)

	require.NoError(t, p.Writeln("a\nb", 1))
	require.NoError(t, p.Write("c", 2))
	assert.Equal(t, "│ a\n│ b\n│ │ c", hook.String())

	require.NoError(t, p.Close())
	assert.True(t, hook.closed)
}

func TestPrinterWritef(t *testing.T) {
	hook := &bufferHook{}
	p, err := NewPrinter("-", hook)
	require.NoError(t, err)

	require.NoError(t, p.Writef(0, "uid %d", 42))
	assert.Equal(t, "uid 42\n", hook.String())
}
