package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func testdata(name string) string {
	return filepath.Join("testdata", name)
}

func TestLintValidSchema(t *testing.T) {
	out, err := execute(t, nil, "lint", testdata("profile.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "profile: ok (5 fields)\n", out)
}

func TestLintReportsWarnings(t *testing.T) {
	out, err := execute(t, nil, "lint", testdata("sloppy.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sloppy: ok (2 fields)\nwarning: seats: reads \"plan\" without declaring it in dependsOn\n", out)
}

func TestLintJSON(t *testing.T) {
	out, err := execute(t, nil, "lint", "--format", "json", testdata("sloppy.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   LintResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"plan", "seats"}, resp.Data.Fields)
	assert.Equal(t, []LintWarning{{Field: "seats", Message: `reads "plan" without declaring it in dependsOn`}}, resp.Data.Warnings)
}

func TestLintCycleFails(t *testing.T) {
	out, err := execute(t, nil, "lint", testdata("broken.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "error: ")
	assert.Contains(t, out, "cycl")
}

func TestLintMissingFile(t *testing.T) {
	_, err := execute(t, nil, "lint", testdata("missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, nil, "lint", "--format", "xml", testdata("profile.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestPreviewGolden(t *testing.T) {
	out, err := execute(t, nil, "preview", testdata("profile.yaml"),
		"--set", "role=admin",
		"--set", "adminCode=abc",
		"--validate",
	)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "preview_admin", []byte(out))
}

func TestPreviewJSON(t *testing.T) {
	out, err := execute(t, nil, "preview", "--format", "json", testdata("profile.yaml"), "--set", "newsletter=true")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   PreviewResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, true, resp.Data.Values["newsletter"])
	assert.False(t, resp.Data.States["topics"].Disabled)
	assert.False(t, resp.Data.States["adminCode"].Visible)
}

func TestPreviewRejectsUnknownField(t *testing.T) {
	_, err := execute(t, nil, "preview", testdata("profile.yaml"), "--set", "ghost=1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseAssignments(t *testing.T) {
	values, order, err := parseAssignments([]string{"age=42", "name=ada", "tags=[\"a\"]", "age=43"})
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "name", "tags"}, order)
	assert.Equal(t, map[string]any{"age": float64(43), "name": "ada", "tags": []any{"a"}}, values)

	_, _, err = parseAssignments([]string{"=x"})
	require.Error(t, err)
}

type fakeDriver struct {
	answers map[string][]any
	infos   []string
}

func (d *fakeDriver) next(message string) (any, error) {
	queue := d.answers[message]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no scripted answer for %q", message)
	}
	d.answers[message] = queue[1:]
	return queue[0], nil
}

func (d *fakeDriver) Input(_ context.Context, cfg InputConfig) (string, error) {
	v, err := d.next(cfg.Message)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (d *fakeDriver) Password(ctx context.Context, cfg InputConfig) (string, error) {
	return d.Input(ctx, cfg)
}

func (d *fakeDriver) TextArea(ctx context.Context, cfg InputConfig) (string, error) {
	return d.Input(ctx, cfg)
}

func (d *fakeDriver) Confirm(_ context.Context, cfg ConfirmConfig) (bool, error) {
	v, err := d.next(cfg.Message)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (d *fakeDriver) Select(_ context.Context, cfg SelectConfig) (int, error) {
	v, err := d.next(cfg.Message)
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (d *fakeDriver) MultiSelect(_ context.Context, cfg SelectConfig) ([]int, error) {
	v, err := d.next(cfg.Message)
	if err != nil {
		return nil, err
	}
	return v.([]int), nil
}

func (d *fakeDriver) Info(_ context.Context, msg string) error {
	d.infos = append(d.infos, msg)
	return nil
}

func TestFillRetriesRejectedAnswers(t *testing.T) {
	driver := &fakeDriver{answers: map[string][]any{
		"Role":       {1},
		"Admin code": {"abc", "abcdef"},
		"Newsletter": {true},
		"Topics":     {[]int{1}},
		"Bio":        {"gopher"},
	}}
	out, err := execute(t, &RootOptions{Driver: driver}, "fill", testdata("profile.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Admin code: Must be at least 5 characters"}, driver.infos)

	var values map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &values))
	assert.Equal(t, map[string]any{
		"role":       "admin",
		"adminCode":  "abcdef",
		"newsletter": true,
		"topics":     []any{"rust"},
		"bio":        "gopher",
	}, values)
}

func TestFillRestoresDraftFromStore(t *testing.T) {
	store := filepath.Join(t.TempDir(), "drafts.db")

	first := &fakeDriver{answers: map[string][]any{
		"Role":       {0},
		"Newsletter": {false},
		"Bio":        {"draft bio"},
	}}
	_, err := execute(t, &RootOptions{Driver: first}, "fill", testdata("profile.yaml"), "--store", store, "--key", "me")
	require.NoError(t, err)

	var defaults []string
	second := &recordingDriver{fakeDriver: fakeDriver{answers: map[string][]any{
		"Role":       {0},
		"Newsletter": {false},
		"Bio":        {"draft bio"},
	}}, defaults: &defaults}
	_, err = execute(t, &RootOptions{Driver: second}, "fill", testdata("profile.yaml"), "--store", store, "--key", "me")
	require.NoError(t, err)
	assert.Equal(t, []string{"draft bio"}, defaults)
}

type recordingDriver struct {
	fakeDriver
	defaults *[]string
}

func (d *recordingDriver) TextArea(ctx context.Context, cfg InputConfig) (string, error) {
	*d.defaults = append(*d.defaults, cfg.Default)
	return d.fakeDriver.TextArea(ctx, cfg)
}

func TestPreviewBuiltinTimezones(t *testing.T) {
	out, err := execute(t, nil, "preview", "--format", "json", testdata("travel.yaml"), "--set", "timezone=UTC")
	require.NoError(t, err)

	var resp struct {
		Data PreviewResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	state := resp.Data.States["timezone"]
	require.NotEmpty(t, state.Options)
	assert.Equal(t, "Africa/Cairo", state.Options[0].Value)
}
