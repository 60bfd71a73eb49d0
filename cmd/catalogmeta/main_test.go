package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", t.TempDir() + "/missing.env"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestKindsCommand(t *testing.T) {
	out, err := execute(t, "kinds")
	require.NoError(t, err)
	assert.Contains(t, out, "hive-catalog")
	assert.Contains(t, out, "mysql-table")
}

func TestPropertiesCommand(t *testing.T) {
	out, err := execute(t, "properties", "mysql-table")
	require.NoError(t, err)
	assert.Contains(t, out, "engine")
	assert.Contains(t, out, "INNODB")

	_, err = execute(t, "properties", "oracle-catalog")
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", "mysql-table")
	require.NoError(t, err)
	assert.Contains(t, out, "engine=INNODB")
	assert.Contains(t, out, "ENGINE=InnoDB")

	_, err = execute(t, "validate", "hive-catalog")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metastore.uris")

	_, err = execute(t, "validate", "hive-catalog", "metastore.uris")
	assert.Error(t, err)
}

func TestParseAssignments(t *testing.T) {
	props, err := parseAssignments([]string{"a=1", "b=x=y", "c="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y", "c": ""}, props)

	_, err = parseAssignments([]string{"=v"})
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "catalogmeta version dev"))
}
