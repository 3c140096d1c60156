//go:build !integration

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ntripbrowser/internal/config"
	"github.com/sells-group/ntripbrowser/internal/render"
	"github.com/sells-group/ntripbrowser/internal/sourcetable"
)

func TestOutputOptions_Sections(t *testing.T) {
	tests := []struct {
		name string
		opts outputOptions
		want []sourcetable.Kind
	}{
		{"streams only", outputOptions{}, []sourcetable.Kind{sourcetable.Stream}},
		{"with casters", outputOptions{casTable: true}, []sourcetable.Kind{sourcetable.Stream, sourcetable.Caster}},
		{"all", outputOptions{casTable: true, netTable: true}, sourcetable.Kinds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.sections())
		})
	}
}

func TestOutputOptions_Resolve(t *testing.T) {
	cfg = &config.Config{Output: config.OutputConfig{Format: "yaml"}}

	format, view, err := (&outputOptions{}).resolve()
	require.NoError(t, err)
	assert.Equal(t, render.FormatYAML, format)
	assert.Equal(t, render.View{}, view)

	format, view, err = (&outputOptions{format: "csv", maxDistance: 50, sortBy: "distance"}).resolve()
	require.NoError(t, err)
	assert.Equal(t, render.FormatCSV, format)
	assert.Equal(t, 50.0, view.MaxDistance)

	_, _, err = (&outputOptions{format: "pdf"}).resolve()
	assert.Error(t, err)

	_, _, err = (&outputOptions{maxDistance: -1}).resolve()
	assert.Error(t, err)

	_, _, err = (&outputOptions{format: "shapefile"}).resolve()
	assert.Error(t, err)

	_, _, err = (&outputOptions{format: "shapefile", output: "out"}).resolve()
	assert.NoError(t, err)
}

func TestOutputOptions_EmitBuffer(t *testing.T) {
	cfg = &config.Config{Output: config.OutputConfig{Format: "table"}}
	table := sourcetable.Parse(casterTable)

	var buf bytes.Buffer
	require.NoError(t, (&outputOptions{netTable: true}).emit(&buf, table))
	assert.Contains(t, buf.String(), "STR (2)")
	assert.Contains(t, buf.String(), "NET (1)")
	assert.NotContains(t, buf.String(), "CAS (")
}

func TestOutputOptions_EmitBinaryToBuffer(t *testing.T) {
	cfg = &config.Config{Output: config.OutputConfig{Format: "table"}}

	var buf bytes.Buffer
	require.NoError(t, (&outputOptions{format: "xlsx"}).emit(&buf, sourcetable.Parse(casterTable)))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PK")))
}
