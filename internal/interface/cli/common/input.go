package common

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
)

// ReadDocument decodes a YAML or JSON document into out.
// The path "-" reads the command's stdin.
func ReadDocument(cmd *cobra.Command, path string, out any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = afero.ReadFile(GetFs(), path)
	}
	if err != nil {
		return goerr.Wrap(err, "failed to read input document", goerr.V("path", path))
	}

	// YAML is a superset of JSON, so one decoder serves both
	if err := yaml.Unmarshal(data, out); err != nil {
		return model.InvalidArgument("malformed input document",
			goerr.V("path", path), goerr.V("cause", err.Error()))
	}
	return nil
}

// ParseAssignments turns key=value pairs into a map. Values are decoded as
// YAML scalars so "3" becomes an int and "true" a bool.
func ParseAssignments(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, model.InvalidArgument("expected key=value", goerr.V("value", pair))
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		out[key] = value
	}
	return out, nil
}

// ParseDuration accepts Go durations plus a whole-day suffix ("7d").
// An empty string is zero.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, model.InvalidArgument("invalid duration", goerr.V("value", s))
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, model.InvalidArgument("invalid duration", goerr.V("value", s))
	}
	return d, nil
}
