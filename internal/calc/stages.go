package calc

// Options tune the stages built by Stages.
type Options struct {
	// Pick breaks ties between non-numeric auto timeline values.
	Pick func([]any) any
	// WinChanceMinMatches is the number of played matches needed before
	// the win chance model is fitted.
	WinChanceMinMatches int
}

// Stages returns every stage in evaluation order. Each stage runs after the
// stages that produce its inputs, so one pass over the list settles every
// output.
func Stages(env *Env, opts Options) []Stage {
	return []Stage{
		NewDecompress(env),
		NewObjTIM(env, opts.Pick),
		NewTBATIM(env),
		NewObjTeam(env),
		NewSubjTeam(env),
		NewTBATeam(env),
		NewPickability(env),
		NewPredictedAIM(env, opts.WinChanceMinMatches),
		NewPredictedTeam(env),
		NewSimPrecision(env),
		NewScoutPrecision(env),
	}
}
