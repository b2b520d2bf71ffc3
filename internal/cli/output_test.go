package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geostore/internal/storeerr"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Success("2026:10:19:1", map[string]string{"result": "success"}, nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "2026:10:19:1", resp.Txn)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Success("", nil, func(w io.Writer) { fmt.Fprintln(w, "3 collections") })
	require.NoError(t, err)
	assert.Equal(t, "3 collections\n", buf.String())
}

func TestOutputFormatter_JSONStoreError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Error(storeerr.NewConflict("roads", "a1", "expected state differs"))
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFLICT", resp.Error.Code)
	assert.Equal(t, "roads", resp.Error.Collection)
	assert.Equal(t, "a1", resp.Error.FeatureID)
}

func TestOutputFormatter_TextPlainError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error(errors.New("disk full")))
	assert.Equal(t, "Error [ERROR]: disk full\n", buf.String())
}

func TestWrapStoreError_ExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"conflict", storeerr.NewConflict("roads", "a", "x"), ExitRetryable},
		{"duplicate", storeerr.NewDuplicate("roads", "a"), ExitFailure},
		{"not found", storeerr.NewCollectionNotFound("roads"), ExitFailure},
		{"plain", errors.New("boom"), ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapStoreError("write failed", tt.err)
			assert.Equal(t, tt.want, GetExitCode(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestGetExitCode_Default(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad flag"))))
}
