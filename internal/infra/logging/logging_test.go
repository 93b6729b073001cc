package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"market-genome/internal/config"
)

func TestWith_AttachesContextIDs(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	ctx := WithSessID(WithJobID(WithTraceID(context.Background(), "t-1"), "j-1"), "s-1")
	ctx = WithJobID(ctx, "j-2")

	With(ctx, &base).Info().Msg("hello")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for k, want := range map[string]string{"trace_id": "t-1", "job_id": "j-2", "session_id": "s-1"} {
		if got[k] != want {
			t.Errorf("%s = %v, want %s", k, got[k], want)
		}
	}
}

func TestWith_NoFieldsReturnsBase(t *testing.T) {
	base := zerolog.Nop()
	if With(context.Background(), &base) != &base {
		t.Error("expected base logger back")
	}
}

func TestBuild_LevelAndService(t *testing.T) {
	var buf bytes.Buffer
	l := build(&buf, config.LogConfig{Level: " WARN ", Format: "json"}, false)
	l.Info().Msg("dropped")
	l.Warn().Msg("kept")

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, `"service":"market-genome"`) {
		t.Errorf("missing service field: %q", out)
	}

	buf.Reset()
	build(&buf, config.LogConfig{Level: "bogus"}, false).Debug().Msg("x")
	if buf.Len() != 0 {
		t.Error("bogus level should fall back to info")
	}
}

func TestBuild_SamplingKeepsErrors(t *testing.T) {
	var buf bytes.Buffer
	l := build(&buf, config.LogConfig{Level: "info", Sampling: true}, false)
	for i := 0; i < 500; i++ {
		l.Info().Msg("noise")
	}
	buf.Reset()
	for i := 0; i < 5; i++ {
		l.Error().Msg("boom")
	}
	if n := strings.Count(buf.String(), "boom"); n != 5 {
		t.Fatalf("errors sampled away: %d of 5", n)
	}
}

func TestRedactEmail(t *testing.T) {
	cases := map[string]string{
		"owner@acme.io": "o***@acme.io",
		"x":             "***",
		"@nope.io":      "***",
	}
	for in, want := range cases {
		if got := RedactEmail(in); got != want {
			t.Errorf("RedactEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
