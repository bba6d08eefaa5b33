package secrets

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/keygate/keygate/internal/secretstore"
)

// Output formats accepted by Format.
const (
	FormatBash   = "bash"
	FormatExport = "export"
	FormatJSON   = "json"
)

// Formats lists the accepted output formats.
var Formats = []string{FormatBash, FormatJSON, FormatExport}

// FilterEntries keeps only entries whose key appears in the comma-separated
// filter. An empty filter keeps everything.
func FilterEntries(entries []secretstore.Entry, filter string) []secretstore.Entry {
	keys := ParseKeyList(filter)
	if keys == nil {
		return entries
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}

	var out []secretstore.Entry
	for _, e := range entries {
		if want[e.Key] {
			out = append(out, e)
		}
	}
	return out
}

// Format writes entries to w. The bash and export formats emit
// `export KEY='value'` lines suitable for eval; json emits a pretty object.
func Format(w io.Writer, entries []secretstore.Entry, format string) error {
	switch format {
	case FormatBash, FormatExport:
		for _, e := range entries {
			if _, err := fmt.Fprintf(w, "export %s='%s'\n", e.Key, ShellQuote(e.Value)); err != nil {
				return err
			}
		}
		return nil
	case FormatJSON:
		obj := make(map[string]string, len(entries))
		for _, e := range entries {
			obj[e.Key] = e.Value
		}
		data, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding secrets: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	default:
		return fmt.Errorf("unknown format %q: use %s", format, strings.Join(Formats, ", "))
	}
}

// ShellQuote escapes value for use inside single quotes.
func ShellQuote(value string) string {
	return strings.ReplaceAll(value, "'", `'\''`)
}
