package schema

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// QR section names.
const (
	SectionGeneric    = "generic_data"
	SectionObjective  = "objective_tim"
	SectionSubjective = "subjective_aim"
	SectionTimeline   = "timeline"
)

// FieldType is the declared type of a QR field: a scalar kind, or a list of Elem.
type FieldType struct {
	Kind Kind
	Elem Kind
}

func (t FieldType) String() string {
	if t.Kind == KindList {
		return "[list, " + string(t.Elem) + "]"
	}
	return string(t.Kind)
}

// Field is one QR field, encoded as <Letter><value>.
type Field struct {
	Name   string
	Letter string
	Type   FieldType
}

// Section is a QR section with its framing characters and ordered fields.
type Section struct {
	Name              string
	StartCharacter    string
	Separator         string
	SectionSeparator  string
	SeparatorInternal string
	TeamSeparator     string
	AllianceSeparator string
	ListDataSeparator string
	Fields            []Field
	AllianceFields    []string

	byName   map[string]int
	byLetter map[string]int
}

// Field looks a field up by name.
func (s *Section) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// FieldByLetter looks a field up by its compressed letter.
func (s *Section) FieldByLetter(letter string) (Field, bool) {
	i, ok := s.byLetter[letter]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// IsAllianceField reports whether name is carried once per alliance.
func (s *Section) IsAllianceField(name string) bool {
	for _, f := range s.AllianceFields {
		if f == name {
			return true
		}
	}
	return false
}

// TimelineField is one fixed-width sub-field of a timeline record.
type TimelineField struct {
	Name     string
	Length   int
	Type     Kind
	Position int
}

// Enum maps compressed codes to names, preserving declared order.
type Enum struct {
	Name   string
	Names  []string
	Codes  []string
	byCode map[string]string
	byName map[string]string
}

// NewEnum builds an Enum from parallel name and code lists.
func NewEnum(name string, names, codes []string) *Enum {
	e := &Enum{Name: name, Names: names, Codes: codes, byCode: map[string]string{}, byName: map[string]string{}}
	for i := range names {
		e.byCode[codes[i]] = names[i]
		e.byName[names[i]] = codes[i]
	}
	return e
}

// Decode returns the name for code.
func (e *Enum) Decode(code string) (string, bool) {
	n, ok := e.byCode[code]
	return n, ok
}

// Encode returns the code for name.
func (e *Enum) Encode(name string) (string, bool) {
	c, ok := e.byName[name]
	return c, ok
}

// Ordinal returns the declared position of name.
func (e *Enum) Ordinal(name string) (int, bool) {
	for i, n := range e.Names {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// QR describes the QR wire format.
type QR struct {
	Version    int
	Generic    Section
	Objective  Section
	Subjective Section
	Timeline   []TimelineField
	Enums      map[string]*Enum
}

// TimelineWidth is the width of one encoded timeline record.
func (q *QR) TimelineWidth() int {
	w := 0
	for _, f := range q.Timeline {
		w += f.Length
	}
	return w
}

func parseQR(root *yaml.Node) (*QR, error) {
	top, err := entries(root)
	if err != nil {
		return nil, err
	}
	q := &QR{Enums: map[string]*Enum{}}
	seen := map[string]bool{}
	for _, e := range top {
		seen[e.key] = true
		switch e.key {
		case "schema_file":
			var sf struct {
				Version int `mapstructure:"version"`
			}
			if err := decode(e.node, &sf); err != nil {
				return nil, err
			}
			q.Version = sf.Version
		case SectionGeneric:
			err = parseSection(e.key, e.node, &q.Generic)
		case SectionObjective:
			err = parseSection(e.key, e.node, &q.Objective)
		case SectionSubjective:
			err = parseSection(e.key, e.node, &q.Subjective)
		case SectionTimeline:
			q.Timeline, err = parseTimeline(e.node)
		default:
			var en *Enum
			en, err = parseEnum(e.key, e.node)
			q.Enums[e.key] = en
		}
		if err != nil {
			return nil, err
		}
	}

	for _, name := range []string{"schema_file", SectionGeneric, SectionObjective, SectionSubjective, SectionTimeline} {
		if !seen[name] {
			return nil, fmt.Errorf("%w: missing section %s", ErrInvalidSchema, name)
		}
	}
	return q, q.validate()
}

func (q *QR) validate() error {
	if q.Version <= 0 {
		return fmt.Errorf("%w: schema_file.version must be positive", ErrInvalidSchema)
	}
	if q.Generic.Separator == "" || q.Generic.SectionSeparator == "" {
		return fmt.Errorf("%w: generic_data needs _separator and _section_separator", ErrInvalidSchema)
	}
	if _, ok := q.Generic.Field("schema_version"); !ok {
		return fmt.Errorf("%w: generic_data needs schema_version", ErrInvalidSchema)
	}
	for _, s := range []*Section{&q.Objective, &q.Subjective} {
		if len(s.StartCharacter) != 1 || s.Separator == "" {
			return fmt.Errorf("%w: %s needs a one-character _start_character and a _separator", ErrInvalidSchema, s.Name)
		}
	}
	if q.Objective.StartCharacter == q.Subjective.StartCharacter {
		return fmt.Errorf("%w: objective and subjective start characters collide", ErrInvalidSchema)
	}
	if q.Subjective.TeamSeparator == "" {
		return fmt.Errorf("%w: subjective_aim needs _team_separator", ErrInvalidSchema)
	}
	for _, name := range q.Subjective.AllianceFields {
		if _, ok := q.Subjective.Field(name); !ok {
			return fmt.Errorf("%w: alliance field %s is not declared", ErrInvalidSchema, name)
		}
	}
	if len(q.Subjective.AllianceFields) > 0 && q.Subjective.AllianceSeparator == "" {
		return fmt.Errorf("%w: subjective_aim alliance fields need _alliance_data_separator", ErrInvalidSchema)
	}
	for _, tf := range q.Timeline {
		if tf.Type == KindEnum && q.Enums[tf.Name] == nil {
			return fmt.Errorf("%w: timeline enum %s has no category", ErrInvalidSchema, tf.Name)
		}
	}
	for _, s := range []*Section{&q.Generic, &q.Objective, &q.Subjective} {
		for _, f := range s.Fields {
			if f.Type.Kind == KindEnum && q.Enums[f.Name] == nil {
				return fmt.Errorf("%w: enum field %s has no category", ErrInvalidSchema, f.Name)
			}
			if f.Type.Kind == KindList && f.Type.Elem == KindDict && f.Name != SectionTimeline {
				return fmt.Errorf("%w: only the timeline may be a list of records", ErrInvalidSchema)
			}
			if f.Type.Kind == KindList && f.Type.Elem != KindDict && s.SeparatorInternal == "" {
				return fmt.Errorf("%w: list field %s needs _separator_internal", ErrInvalidSchema, f.Name)
			}
		}
	}
	return nil
}

func parseSection(name string, n *yaml.Node, s *Section) error {
	es, err := entries(n)
	if err != nil {
		return err
	}
	s.Name = name
	s.byName = map[string]int{}
	s.byLetter = map[string]int{}
	for _, e := range es {
		if strings.HasPrefix(e.key, "_") {
			if err := parseFraming(s, e); err != nil {
				return err
			}
			continue
		}
		f, err := parseField(e)
		if err != nil {
			return err
		}
		if _, dup := s.byLetter[f.Letter]; dup {
			return fmt.Errorf("%w: %s: letter %s used twice", ErrInvalidSchema, name, f.Letter)
		}
		s.byName[f.Name] = len(s.Fields)
		s.byLetter[f.Letter] = len(s.Fields)
		s.Fields = append(s.Fields, f)
	}
	return nil
}

func parseFraming(s *Section, e entry) error {
	if e.key == "_alliance_fields" {
		return e.node.Decode(&s.AllianceFields)
	}
	if e.node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: %s.%s must be a string", ErrInvalidSchema, s.Name, e.key)
	}
	v := e.node.Value
	switch e.key {
	case "_start_character":
		s.StartCharacter = v
	case "_separator":
		s.Separator = v
	case "_section_separator":
		s.SectionSeparator = v
	case "_separator_internal":
		s.SeparatorInternal = v
	case "_team_separator":
		s.TeamSeparator = v
	case "_alliance_data_separator":
		s.AllianceSeparator = v
	case "_list_data_separator":
		s.ListDataSeparator = v
	default:
		return fmt.Errorf("%w: %s: unknown framing key %s", ErrInvalidSchema, s.Name, e.key)
	}
	return nil
}

func parseField(e entry) (Field, error) {
	n := e.node
	if n.Kind != yaml.SequenceNode || len(n.Content) != 2 || n.Content[0].Kind != yaml.ScalarNode {
		return Field{}, fmt.Errorf("%w: field %s must be [letter, type]", ErrInvalidSchema, e.key)
	}
	letter := n.Content[0].Value
	if len(letter) != 1 {
		return Field{}, fmt.Errorf("%w: field %s letter %q must be one character", ErrInvalidSchema, e.key, letter)
	}
	t, err := parseFieldType(e.key, n.Content[1])
	if err != nil {
		return Field{}, err
	}
	return Field{Name: e.key, Letter: letter, Type: t}, nil
}

func parseFieldType(name string, n *yaml.Node) (FieldType, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		k := Kind(n.Value)
		if !k.scalar() {
			return FieldType{}, fmt.Errorf("%w: field %s: unknown type %q", ErrInvalidSchema, name, n.Value)
		}
		return FieldType{Kind: k}, nil
	case yaml.SequenceNode:
		if len(n.Content) == 2 && n.Content[0].Value == string(KindList) {
			elem := Kind(n.Content[1].Value)
			if elem.scalar() || elem == KindDict {
				return FieldType{Kind: KindList, Elem: elem}, nil
			}
		}
	}
	return FieldType{}, fmt.Errorf("%w: field %s: bad type", ErrInvalidSchema, name)
}

func parseTimeline(n *yaml.Node) ([]TimelineField, error) {
	es, err := entries(n)
	if err != nil {
		return nil, err
	}
	var out []TimelineField
	for _, e := range es {
		if strings.HasPrefix(e.key, "_") {
			continue
		}
		var raw struct {
			Length   int    `mapstructure:"length"`
			Type     string `mapstructure:"type"`
			Position int    `mapstructure:"position"`
		}
		if err := decode(e.node, &raw); err != nil {
			return nil, err
		}
		k := Kind(raw.Type)
		if raw.Length <= 0 || !k.scalar() {
			return nil, fmt.Errorf("%w: timeline field %s needs a positive length and scalar type", ErrInvalidSchema, e.key)
		}
		out = append(out, TimelineField{Name: e.key, Length: raw.Length, Type: k, Position: raw.Position})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: timeline has no fields", ErrInvalidSchema)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// parseEnum reads a name: code mapping.
func parseEnum(name string, n *yaml.Node) (*Enum, error) {
	es, err := entries(n)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(es))
	codes := make([]string, 0, len(es))
	for _, e := range es {
		if e.node.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: enum %s.%s must be a scalar", ErrInvalidSchema, name, e.key)
		}
		names = append(names, e.key)
		codes = append(codes, e.node.Value)
	}
	return NewEnum(name, names, codes), nil
}

// parseCodeEnum reads a code: name mapping (categorical_actions enums).
func parseCodeEnum(name string, n *yaml.Node) (*Enum, error) {
	es, err := entries(n)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(es))
	codes := make([]string, 0, len(es))
	for _, e := range es {
		if e.node.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: enum %s.%s must be a scalar", ErrInvalidSchema, name, e.key)
		}
		codes = append(codes, e.key)
		names = append(names, e.node.Value)
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: enum %s is empty", ErrInvalidSchema, name)
	}
	return NewEnum(name, names, codes), nil
}
