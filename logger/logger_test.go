package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	require.NoError(t, SetLevel("debug"))
	t.Cleanup(func() {
		SetOutput(logrus.StandardLogger().Out)
		require.NoError(t, SetLevel("info"))
	})

	WithComponent("session").Debug("captured")
	require.Contains(t, buf.String(), "component=session")
	require.Contains(t, buf.String(), "captured")
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	require.Error(t, SetLevel("loud"))
}
