// Package schema loads the YAML schemas that drive the QR codec, the
// document store layout and every calculation stage.
package schema

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Schema file names.
const (
	QRFile            = "qr_schema.yml"
	CollectionFile    = "collection_schema.yml"
	ObjTIMFile        = "calc_obj_tim_schema.yml"
	ObjTeamFile       = "calc_obj_team_schema.yml"
	SubjTeamFile      = "calc_subj_team_schema.yml"
	TBATIMFile        = "calc_tba_tim_schema.yml"
	TBATeamFile       = "calc_tba_team_schema.yml"
	PredictedAIMFile  = "calc_predicted_aim_schema.yml"
	PredictedTeamFile = "calc_predicted_team_schema.yml"
	PickabilityFile   = "calc_pickability_schema.yml"
	SimPrecisionFile  = "calc_sim_precision_schema.yml"
)

//go:embed defaults/*.yml
var embedded embed.FS

// Set holds every schema the pipeline needs.
type Set struct {
	QR            *QR
	Collections   *Collections
	ObjTIM        *ObjTIM
	ObjTeam       *Team
	SubjTeam      *Team
	TBATIM        *TBATIM
	TBATeam       *Team
	PredictedAIM  *PredictedAIM
	PredictedTeam *PredictedTeam
	Pickability   *Pickability
	SimPrecision  *SimPrecision
}

// Load reads the schemas from dir, or the embedded defaults when dir is empty.
func Load(dir string) (*Set, error) {
	if dir == "" {
		return Default()
	}
	return LoadFS(os.DirFS(dir))
}

// Default returns the embedded schemas.
func Default() (*Set, error) {
	return LoadFS(DefaultFS())
}

// DefaultFS exposes the embedded schema files.
func DefaultFS() fs.FS {
	sub, err := fs.Sub(embedded, "defaults")
	if err != nil {
		panic(err) // the embed pattern guarantees the directory
	}
	return sub
}

// LoadFS reads and validates every schema file from fsys.
func LoadFS(fsys fs.FS) (*Set, error) {
	s := &Set{}
	steps := []struct {
		file  string
		parse func(*yaml.Node) error
	}{
		{QRFile, func(n *yaml.Node) (err error) { s.QR, err = parseQR(n); return }},
		{CollectionFile, func(n *yaml.Node) (err error) { s.Collections, err = parseCollections(n); return }},
		{ObjTIMFile, func(n *yaml.Node) (err error) { s.ObjTIM, err = parseObjTIM(n); return }},
		{ObjTeamFile, func(n *yaml.Node) (err error) { s.ObjTeam, err = parseTeam(n); return }},
		{SubjTeamFile, func(n *yaml.Node) (err error) { s.SubjTeam, err = parseTeam(n); return }},
		{TBATIMFile, func(n *yaml.Node) (err error) { s.TBATIM, err = parseTBATIM(n); return }},
		{TBATeamFile, func(n *yaml.Node) (err error) { s.TBATeam, err = parseTeam(n); return }},
		{PredictedAIMFile, func(n *yaml.Node) (err error) { s.PredictedAIM, err = parsePredictedAIM(n); return }},
		{PredictedTeamFile, func(n *yaml.Node) (err error) { s.PredictedTeam, err = parsePredictedTeam(n); return }},
		{PickabilityFile, func(n *yaml.Node) (err error) { s.Pickability, err = parsePickability(n); return }},
		{SimPrecisionFile, func(n *yaml.Node) (err error) { s.SimPrecision, err = parseSimPrecision(n); return }},
	}
	for _, step := range steps {
		root, err := readNode(fsys, step.file)
		if err != nil {
			return nil, err
		}
		if err := step.parse(root); err != nil {
			return nil, fmt.Errorf("%s: %w", step.file, err)
		}
	}

	for _, c := range s.Collections.List {
		if c.Schema == "" {
			continue
		}
		if _, err := fs.Stat(fsys, c.Schema); err != nil {
			return nil, fmt.Errorf("%w: collection %s references %s", ErrMissingSchema, c.Name, c.Schema)
		}
	}
	for _, t := range []*Team{s.ObjTeam, s.SubjTeam, s.TBATeam} {
		if _, ok := s.Collections.Get(t.Source); !ok {
			return nil, fmt.Errorf("%w: team source %q is not a collection", ErrInvalidSchema, t.Source)
		}
	}
	return s, nil
}

func readNode(fsys fs.FS, name string) (*yaml.Node, error) {
	raw, err := fs.ReadFile(fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingSchema, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingSchema, name, err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSchema, name, err)
	}
	return &root, nil
}
