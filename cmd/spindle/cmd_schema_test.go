// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDiffSchemas(t *testing.T) {
	base := writeCSV(t, "base.csv", "region,revenue\nwest,120\n")
	target := writeCSV(t, "target.csv", "region,units\nwest,3\n")

	diff, baseFP, targetFP, err := diffSchemas(context.Background(),
		"csv:"+base, "csv:"+target)
	require.NoError(t, err)
	assert.NotEmpty(t, baseFP)
	assert.NotEmpty(t, targetFP)
	assert.NotEqual(t, baseFP, targetFP)

	assert.False(t, diff.Compatible)
	assert.Equal(t, []string{"units"}, diff.AddedColumns)
	assert.Equal(t, []string{"revenue"}, diff.RemovedColumns)
}

func TestDiffSchemas_Identical(t *testing.T) {
	content := "region,revenue\nwest,120\n"
	base := writeCSV(t, "base.csv", content)
	target := writeCSV(t, "target.csv", content)

	diff, baseFP, targetFP, err := diffSchemas(context.Background(),
		"csv:"+base, "csv:"+target)
	require.NoError(t, err)
	assert.Equal(t, baseFP, targetFP)
	assert.True(t, diff.Compatible)
	assert.Empty(t, diff.AddedColumns)
	assert.Empty(t, diff.RemovedColumns)
	assert.Empty(t, diff.ChangedTypes)
}

func TestDiffSchemas_BadSpec(t *testing.T) {
	_, _, _, err := diffSchemas(context.Background(), "nope", "also-nope")
	assert.Error(t, err)
}
