package calc

import (
	"context"

	"github.com/okian/scoutcalc/internal/adapters/store"
	"github.com/okian/scoutcalc/internal/domain/pickability"
	"github.com/okian/scoutcalc/pkg/logger"
)

// StagePickability scores teams for alliance selection.
const StagePickability = "pickability"

// Pickability combines the team collections into pick list scores.
type Pickability struct {
	env    *Env
	scorer *pickability.Scorer
}

// NewPickability creates the stage.
func NewPickability(env *Env) *Pickability {
	return &Pickability{env: env, scorer: pickability.New(env.Schemas.Pickability)}
}

func (s *Pickability) Name() string { return StagePickability }

func (s *Pickability) Watches() []string {
	return []string{store.ObjTeam, store.SubjTeam, store.TBATeam}
}

func (s *Pickability) Outputs() []string { return []string{store.Pickability} }

func (s *Pickability) Keys(changes []store.Change) ([]Key, bool) {
	return keysFrom(changes, s.Watches(), teamKey...), false
}

func (s *Pickability) Recompute(ctx context.Context, keys []Key) error {
	if keys == nil {
		colls := append(s.Watches(), store.Pickability)
		var err error
		if keys, err = distinctKeys(ctx, s.env.Store, teamKey, colls...); err != nil {
			return err
		}
	}
	log := s.env.logger()
	return each(ctx, log, s.Name(), keys, func(k Key) error {
		in := pickability.Input{}
		for _, coll := range s.Watches() {
			docs, err := s.env.Store.Find(ctx, coll, k)
			if err != nil {
				return storeErr(err)
			}
			if len(docs) > 0 {
				in[coll] = docs[0]
			}
		}
		var desired []store.Doc
		if len(in) > 0 {
			out, skipped := s.scorer.Score(in)
			for _, err := range skipped {
				log.Warn(ctx, "pickability skipped", logger.Any("team", k[FieldTeamNumber]), logger.Error(err))
			}
			if len(out) > 0 {
				out[FieldTeamNumber] = k[FieldTeamNumber]
				desired = append(desired, out)
			}
		}
		return storeErr(syncDocs(ctx, s.env.Store, store.Pickability, k, teamKey, desired))
	})
}

func (s *Pickability) RecomputeAll(ctx context.Context) error {
	if err := clearOutputs(ctx, s.env.Store, s.Outputs()...); err != nil {
		return err
	}
	return s.Recompute(ctx, nil)
}
