// Package qr compresses scout reports into the delimiter-separated QR
// payload read by the server, and decompresses them back.
package qr

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/okian/scoutcalc/internal/schema"
)

// Type is the kind of report a QR carries.
type Type int

// Report types.
const (
	Objective Type = iota + 1
	Subjective
)

func (t Type) String() string {
	switch t {
	case Objective:
		return "objective"
	case Subjective:
		return "subjective"
	}
	return "unknown"
}

// Record is one decompressed report: generic fields plus section fields.
type Record = map[string]any

// Action is one decoded timeline entry.
type Action = map[string]any

const (
	fieldSchemaVersion = "schema_version"
	fieldTimeline      = "timeline"
	fieldInTeleop      = "in_teleop"
	fieldActionType    = "action_type"
	actionToTeleop     = "to_teleop"
	subjectiveTeams    = 3
)

// Codec translates between records and QR payloads for one schema.
type Codec struct {
	s *schema.QR
}

// New returns a codec for s.
func New(s *schema.QR) *Codec {
	return &Codec{s: s}
}

// Schema returns the codec's QR schema.
func (c *Codec) Schema() *schema.QR { return c.s }

// TypeOf classifies a payload by its start character.
func (c *Codec) TypeOf(data string) (Type, bool) {
	switch {
	case data == "":
		return 0, false
	case strings.HasPrefix(data, c.s.Objective.StartCharacter):
		return Objective, true
	case strings.HasPrefix(data, c.s.Subjective.StartCharacter):
		return Subjective, true
	}
	return 0, false
}

// Decompress decodes a payload into one objective record or three
// subjective records.
func (c *Codec) Decompress(data string) (Type, []Record, error) {
	t, ok := c.TypeOf(data)
	if !ok {
		return 0, nil, fmt.Errorf("%w: unrecognized start character", ErrMalformed)
	}
	body := data[1:]
	generic, payload, ok := strings.Cut(body, c.s.Generic.SectionSeparator)
	if !ok {
		return 0, nil, fmt.Errorf("%w: missing section separator", ErrMalformed)
	}

	if err := c.checkVersion(generic); err != nil {
		return 0, nil, err
	}
	header, err := c.decodeSection(&c.s.Generic, generic, nil)
	if err != nil {
		return 0, nil, err
	}

	if t == Objective {
		rec, err := c.decodeSection(&c.s.Objective, payload, nil)
		if err != nil {
			return 0, nil, err
		}
		return t, []Record{merge(header, rec)}, nil
	}

	recs, err := c.decodeSubjective(payload)
	if err != nil {
		return 0, nil, err
	}
	for i := range recs {
		recs[i] = merge(header, recs[i])
	}
	return t, recs, nil
}

// checkVersion validates the leading schema_version field before anything else.
func (c *Codec) checkVersion(generic string) error {
	f, _ := c.s.Generic.Field(fieldSchemaVersion)
	first, _, _ := strings.Cut(generic, c.s.Generic.Separator)
	if !strings.HasPrefix(first, f.Letter) {
		return fmt.Errorf("%w: first field is not %s", ErrMalformed, fieldSchemaVersion)
	}
	v, err := strconv.Atoi(first[len(f.Letter):])
	if err != nil {
		return fmt.Errorf("%w: schema version %q", ErrMalformed, first[len(f.Letter):])
	}
	if v != c.s.Version {
		return fmt.Errorf("%w: got %d, want %d", ErrSchemaMismatch, v, c.s.Version)
	}
	return nil
}

func (c *Codec) decodeSubjective(payload string) ([]Record, error) {
	sec := &c.s.Subjective
	teamPart, alliancePart, hasTail := payload, "", false
	if sec.AllianceSeparator != "" {
		teamPart, alliancePart, hasTail = strings.Cut(payload, sec.AllianceSeparator)
	}

	// The alliance tail is optional; without it records carry team fields only.
	alliance := Record{}
	if len(sec.AllianceFields) > 0 && hasTail {
		var err error
		alliance, err = c.decodeSection(sec, alliancePart, func(name string) bool { return sec.IsAllianceField(name) })
		if err != nil {
			return nil, err
		}
	}

	teams := strings.Split(teamPart, sec.TeamSeparator)
	if len(teams) != subjectiveTeams {
		return nil, fmt.Errorf("%w: %d subjective team records, want %d", ErrMalformed, len(teams), subjectiveTeams)
	}
	out := make([]Record, 0, subjectiveTeams)
	for _, raw := range teams {
		rec, err := c.decodeSection(sec, raw, func(name string) bool { return !sec.IsAllianceField(name) })
		if err != nil {
			return nil, err
		}
		out = append(out, merge(rec, alliance))
	}
	return out, nil
}

// decodeSection decodes the fields of one section. want restricts the
// required field set; nil means every declared field.
func (c *Codec) decodeSection(sec *schema.Section, raw string, want func(string) bool) (Record, error) {
	rec := Record{}
	if raw != "" {
		for _, tok := range strings.Split(raw, sec.Separator) {
			if tok == "" {
				return nil, fmt.Errorf("%w: %s: empty field", ErrMalformed, sec.Name)
			}
			f, ok := sec.FieldByLetter(tok[:1])
			if !ok || (want != nil && !want(f.Name)) {
				return nil, fmt.Errorf("%w: %s: unknown field letter %q", ErrMalformed, sec.Name, tok[:1])
			}
			if _, dup := rec[f.Name]; dup {
				return nil, fmt.Errorf("%w: %s: field %s repeated", ErrMalformed, sec.Name, f.Name)
			}
			v, err := c.decodeValue(sec, f, tok[1:])
			if err != nil {
				return nil, err
			}
			rec[f.Name] = v
		}
	}
	for _, f := range sec.Fields {
		if want != nil && !want(f.Name) {
			continue
		}
		if _, ok := rec[f.Name]; !ok {
			return nil, fmt.Errorf("%w: %s: missing field %s", ErrMalformed, sec.Name, f.Name)
		}
	}
	return rec, nil
}

func (c *Codec) decodeValue(sec *schema.Section, f schema.Field, raw string) (any, error) {
	if f.Type.Kind != schema.KindList {
		return c.decodeScalar(f.Name, f.Type.Kind, raw)
	}
	if f.Type.Elem == schema.KindDict {
		return c.decodeTimeline(raw)
	}
	if raw == "" {
		return []any{}, nil
	}
	parts := strings.Split(raw, sec.SeparatorInternal)
	out := make([]any, len(parts))
	for i, p := range parts {
		v, err := c.decodeScalar(f.Name, f.Type.Elem, p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c *Codec) decodeScalar(name string, k schema.Kind, raw string) (any, error) {
	switch k {
	case schema.KindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q is not an int", ErrMalformed, name, raw)
		}
		return n, nil
	case schema.KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q is not a float", ErrMalformed, name, raw)
		}
		return f, nil
	case schema.KindBool:
		switch strings.ToUpper(raw) {
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		}
		return nil, fmt.Errorf("%w: %s: %q is not a bool", ErrMalformed, name, raw)
	case schema.KindEnum:
		en := c.s.Enums[name]
		v, ok := en.Decode(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %s: unknown code %q", ErrMalformed, name, raw)
		}
		return v, nil
	default:
		return raw, nil
	}
}

func (c *Codec) decodeTimeline(raw string) ([]Action, error) {
	width := c.s.TimelineWidth()
	if len(raw)%width != 0 {
		return nil, fmt.Errorf("%w: timeline length %d is not a multiple of %d", ErrMalformed, len(raw), width)
	}
	out := make([]Action, 0, len(raw)/width)
	teleop := false
	for off := 0; off < len(raw); off += width {
		rec := Action{}
		pos := off
		for _, tf := range c.s.Timeline {
			v, err := c.decodeScalar(tf.Name, tf.Type, raw[pos:pos+tf.Length])
			if err != nil {
				return nil, err
			}
			rec[tf.Name] = v
			pos += tf.Length
		}
		if rec[fieldActionType] == actionToTeleop {
			teleop = true
		}
		rec[fieldInTeleop] = teleop
		out = append(out, rec)
	}
	return out, nil
}

// Compress encodes records into a payload. Objective payloads take one
// record; subjective payloads take three, with alliance fields read from
// the first.
func (c *Codec) Compress(t Type, recs []Record) (string, error) {
	var sec *schema.Section
	switch t {
	case Objective:
		if len(recs) != 1 {
			return "", fmt.Errorf("%w: objective qr needs one record", ErrMalformed)
		}
		sec = &c.s.Objective
	case Subjective:
		if len(recs) != subjectiveTeams {
			return "", fmt.Errorf("%w: subjective qr needs %d records", ErrMalformed, subjectiveTeams)
		}
		sec = &c.s.Subjective
	default:
		return "", fmt.Errorf("%w: unknown qr type", ErrMalformed)
	}

	first := recs[0]
	if _, ok := first[fieldSchemaVersion]; !ok {
		first = merge(first, Record{fieldSchemaVersion: c.s.Version})
	}
	generic, err := c.encodeSection(&c.s.Generic, first, nil)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(sec.StartCharacter)
	b.WriteString(generic)
	b.WriteString(c.s.Generic.SectionSeparator)

	if t == Objective {
		payload, err := c.encodeSection(sec, recs[0], nil)
		if err != nil {
			return "", err
		}
		b.WriteString(payload)
		return b.String(), nil
	}

	teams := make([]string, len(recs))
	for i, r := range recs {
		if teams[i], err = c.encodeSection(sec, r, func(name string) bool { return !sec.IsAllianceField(name) }); err != nil {
			return "", err
		}
	}
	b.WriteString(strings.Join(teams, sec.TeamSeparator))
	if len(sec.AllianceFields) > 0 && hasAny(recs[0], sec.AllianceFields) {
		alliance, err := c.encodeSection(sec, recs[0], func(name string) bool { return sec.IsAllianceField(name) })
		if err != nil {
			return "", err
		}
		b.WriteString(sec.AllianceSeparator)
		b.WriteString(alliance)
	}
	return b.String(), nil
}

func (c *Codec) encodeSection(sec *schema.Section, rec Record, want func(string) bool) (string, error) {
	parts := make([]string, 0, len(sec.Fields))
	for _, f := range sec.Fields {
		if want != nil && !want(f.Name) {
			continue
		}
		v, ok := rec[f.Name]
		if !ok {
			return "", fmt.Errorf("%w: %s: missing field %s", ErrMalformed, sec.Name, f.Name)
		}
		enc, err := c.encodeValue(sec, f, v)
		if err != nil {
			return "", err
		}
		parts = append(parts, f.Letter+enc)
	}
	return strings.Join(parts, sec.Separator), nil
}

func (c *Codec) encodeValue(sec *schema.Section, f schema.Field, v any) (string, error) {
	if f.Type.Kind != schema.KindList {
		s, err := c.encodeScalar(f.Name, f.Type.Kind, v)
		if err != nil {
			return "", err
		}
		if strings.Contains(s, sec.Separator) || strings.Contains(s, c.s.Generic.SectionSeparator) {
			return "", fmt.Errorf("%w: %s: value contains a separator", ErrMalformed, f.Name)
		}
		return s, nil
	}
	if f.Type.Elem == schema.KindDict {
		return c.encodeTimeline(v)
	}
	items, ok := v.([]any)
	if !ok {
		return "", fmt.Errorf("%w: %s: expected a list", ErrMalformed, f.Name)
	}
	parts := make([]string, len(items))
	for i, item := range items {
		s, err := c.encodeScalar(f.Name, f.Type.Elem, item)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, sec.SeparatorInternal), nil
}

func (c *Codec) encodeScalar(name string, k schema.Kind, v any) (string, error) {
	switch k {
	case schema.KindInt:
		n, ok := asInt(v)
		if !ok {
			return "", fmt.Errorf("%w: %s: %v is not an int", ErrMalformed, name, v)
		}
		return strconv.Itoa(n), nil
	case schema.KindFloat:
		f, ok := schema.ToFloat(v)
		if !ok {
			return "", fmt.Errorf("%w: %s: %v is not a float", ErrMalformed, name, v)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case schema.KindBool:
		b, ok := v.(bool)
		if !ok {
			return "", fmt.Errorf("%w: %s: %v is not a bool", ErrMalformed, name, v)
		}
		if b {
			return "TRUE", nil
		}
		return "FALSE", nil
	case schema.KindEnum:
		s, _ := v.(string)
		code, ok := c.s.Enums[name].Encode(s)
		if !ok {
			return "", fmt.Errorf("%w: %s: unknown value %v", ErrMalformed, name, v)
		}
		return code, nil
	default:
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%w: %s: %v is not a string", ErrMalformed, name, v)
		}
		return s, nil
	}
}

func (c *Codec) encodeTimeline(v any) (string, error) {
	actions, err := actionList(v)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, a := range actions {
		for _, tf := range c.s.Timeline {
			raw, ok := a[tf.Name]
			if !ok {
				return "", fmt.Errorf("%w: timeline action missing %s", ErrMalformed, tf.Name)
			}
			s, err := c.encodeScalar(tf.Name, tf.Type, raw)
			if err != nil {
				return "", err
			}
			if tf.Type == schema.KindInt || tf.Type == schema.KindFloat {
				s = strings.Repeat("0", max(0, tf.Length-len(s))) + s
			}
			if len(s) != tf.Length {
				return "", fmt.Errorf("%w: timeline %s %q does not fit %d characters", ErrMalformed, tf.Name, s, tf.Length)
			}
			b.WriteString(s)
		}
	}
	return b.String(), nil
}

func actionList(v any) ([]Action, error) {
	switch l := v.(type) {
	case []Action:
		return l, nil
	case []any:
		out := make([]Action, len(l))
		for i, item := range l {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: timeline entry %d is not a record", ErrMalformed, i)
			}
			out[i] = m
		}
		return out, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: timeline is not a list", ErrMalformed)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

func hasAny(rec Record, names []string) bool {
	for _, n := range names {
		if _, ok := rec[n]; ok {
			return true
		}
	}
	return false
}

func merge(a, b Record) Record {
	out := make(Record, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
