package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/domain/qr"
	"github.com/okian/scoutcalc/pkg/logger"
	"github.com/okian/scoutcalc/pkg/metrics"
)

// Selector picks raw QRs. Empty criteria match everything they constrain;
// Pattern runs over the payload, the others over its decoded records.
type Selector struct {
	Pattern *regexp.Regexp
	Serial  string
	Match   int
	Team    string
	Scout   string
}

func (s Selector) empty() bool {
	return s.Pattern == nil && s.Serial == "" && s.Match == 0 && s.Team == "" && s.Scout == ""
}

func (s Selector) matches(data string, recs []qr.Record) bool {
	if s.Pattern != nil && !s.Pattern.MatchString(data) {
		return false
	}
	if s.Serial == "" && s.Match == 0 && s.Team == "" && s.Scout == "" {
		return true
	}
	for _, r := range recs {
		if s.Serial != "" && fmt.Sprint(r["serial_number"]) != s.Serial {
			continue
		}
		if s.Match != 0 && fmt.Sprint(r["match_number"]) != strconv.Itoa(s.Match) {
			continue
		}
		if s.Team != "" && fmt.Sprint(r["team_number"]) != s.Team {
			continue
		}
		if s.Scout != "" && !strings.EqualFold(fmt.Sprint(r["scout_name"]), s.Scout) {
			continue
		}
		return true
	}
	return false
}

// Blocklist sets the blocklist flag of every selected raw QR to blocked and
// returns how many changed. An empty selector is refused.
func (in *Ingester) Blocklist(ctx context.Context, sel Selector, blocked bool) (int, error) {
	if sel.empty() {
		return 0, fmt.Errorf("blocklist: empty selector")
	}
	n, err := in.mutate(ctx, sel, func(d store.Doc) store.Doc {
		if store.Bool(d, FieldBlocklisted) == blocked {
			return nil
		}
		return store.Doc{FieldBlocklisted: blocked}
	})
	if err != nil {
		return n, err
	}
	metrics.RecordBlocklistMutation(n)
	in.log.Info(ctx, "blocklist updated", logger.Int("qrs", n), logger.Bool("blocked", blocked))
	return n, nil
}

// Override replaces field with value in the decoded records of every
// selected raw QR. The value is coerced as Coerce describes.
func (in *Ingester) Override(ctx context.Context, sel Selector, field, value string) (int, error) {
	if sel.empty() {
		return 0, fmt.Errorf("override: empty selector")
	}
	if field == "" {
		return 0, fmt.Errorf("override: empty field")
	}
	v := Coerce(value)
	n, err := in.mutate(ctx, sel, func(store.Doc) store.Doc {
		return store.Doc{FieldOverride + "." + field: v}
	})
	if err != nil {
		return n, err
	}
	for i := 0; i < n; i++ {
		metrics.RecordOverrideMutation()
	}
	in.log.Info(ctx, "override applied", logger.Int("qrs", n), logger.String("field", field), logger.Any("value", v))
	return n, nil
}

func (in *Ingester) mutate(ctx context.Context, sel Selector, fields func(store.Doc) store.Doc) (int, error) {
	docs, err := in.store.Find(ctx, store.RawQR, nil)
	if err != nil {
		return 0, fmt.Errorf("find raw qr: %w", err)
	}
	n := 0
	for _, d := range docs {
		data := store.Str(d, FieldData)
		_, recs, _ := in.codec.Decompress(data)
		if !sel.matches(data, recs) {
			continue
		}
		set := fields(d)
		if set == nil {
			continue
		}
		if err := in.store.UpdateDocument(ctx, store.RawQR, set, store.Query{FieldData: data}); err != nil {
			return n, fmt.Errorf("update raw qr: %w", err)
		}
		n++
	}
	return n, nil
}

// Coerce parses an operator-typed value. A value wrapped in matching single
// or double quotes is the string between them; otherwise true/false become
// bools and numbers become ints or floats.
func Coerce(s string) any {
	if n := len(s); n >= 2 && (s[0] == '"' || s[0] == '\'') && s[n-1] == s[0] {
		return s[1 : n-1]
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
